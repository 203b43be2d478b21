// Package dynamo implements kv.Backend on Amazon DynamoDB. The table must
// have a string partition key "pk" and a string sort key "sk"; every other
// attribute is stored as S, N, BOOL or NULL.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"stockwatch/internal/kv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	attrPK = "pk"
	attrSK = "sk"
)

// API is the subset of the DynamoDB client the backend calls.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Backend is a DynamoDB-backed kv.Backend.
type Backend struct {
	client API
	table  string
	logger zerolog.Logger
}

// New creates a backend for table.
func New(client API, table string, logger zerolog.Logger) *Backend {
	return &Backend{
		client: client,
		table:  table,
		logger: logger.With().Str("component", "kv-dynamodb").Str("table", table).Logger(),
	}
}

// Get performs a strongly consistent read of one item.
func (b *Backend) Get(ctx context.Context, key kv.Key) (kv.Item, error) {
	out, err := b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(b.table),
		Key:            keyAttributes(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		b.logger.Error().Err(err).Str("pk", key.PK).Str("sk", key.SK).Msg("failed to get item")
		return kv.Item{}, wrapError("get", err)
	}
	if len(out.Item) == 0 {
		return kv.Item{}, kv.ErrNotFound
	}

	item, err := fromItem(out.Item)
	if err != nil {
		return kv.Item{}, &kv.BackendError{Op: "get", Code: "DecodeError", Message: err.Error(), Err: err}
	}
	return item, nil
}

// Query reads every item of partition pk, following pagination.
func (b *Backend) Query(ctx context.Context, pk string) ([]kv.Item, error) {
	paginator := dynamodb.NewQueryPaginator(b.client, &dynamodb.QueryInput{
		TableName:                 aws.String(b.table),
		KeyConditionExpression:    aws.String("#pk = :pk"),
		ExpressionAttributeNames:  map[string]string{"#pk": attrPK},
		ExpressionAttributeValues: map[string]types.AttributeValue{":pk": &types.AttributeValueMemberS{Value: pk}},
		ConsistentRead:            aws.Bool(true),
	})

	items := []kv.Item{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			b.logger.Error().Err(err).Str("pk", pk).Msg("failed to query partition")
			return nil, wrapError("query", err)
		}
		for _, raw := range page.Items {
			item, err := fromItem(raw)
			if err != nil {
				return nil, &kv.BackendError{Op: "query", Code: "DecodeError", Message: err.Error(), Err: err}
			}
			items = append(items, item)
		}
	}
	return items, nil
}

// Put writes one item.
func (b *Backend) Put(ctx context.Context, put kv.Put) error {
	in, err := b.putInput(put)
	if err != nil {
		return &kv.BackendError{Op: "put", Code: kv.ReasonValidationError, Message: err.Error(), Err: err}
	}

	_, err = b.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 in.TableName,
		Item:                      in.Item,
		ConditionExpression:       in.ConditionExpression,
		ExpressionAttributeNames:  in.ExpressionAttributeNames,
		ExpressionAttributeValues: in.ExpressionAttributeValues,
	})
	return b.singleError("put", put.Item.Key, err)
}

// Update modifies one item.
func (b *Backend) Update(ctx context.Context, update kv.Update) error {
	in, err := b.updateInput(update)
	if err != nil {
		return &kv.BackendError{Op: "update", Code: kv.ReasonValidationError, Message: err.Error(), Err: err}
	}

	_, err = b.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 in.TableName,
		Key:                       in.Key,
		UpdateExpression:          in.UpdateExpression,
		ConditionExpression:       in.ConditionExpression,
		ExpressionAttributeNames:  in.ExpressionAttributeNames,
		ExpressionAttributeValues: in.ExpressionAttributeValues,
	})
	return b.singleError("update", update.Key, err)
}

// Delete removes one item.
func (b *Backend) Delete(ctx context.Context, del kv.Delete) error {
	in, err := b.deleteInput(del)
	if err != nil {
		return &kv.BackendError{Op: "delete", Code: kv.ReasonValidationError, Message: err.Error(), Err: err}
	}

	_, err = b.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 in.TableName,
		Key:                       in.Key,
		ConditionExpression:       in.ConditionExpression,
		ExpressionAttributeNames:  in.ExpressionAttributeNames,
		ExpressionAttributeValues: in.ExpressionAttributeValues,
	})
	return b.singleError("delete", del.Key, err)
}

func (b *Backend) singleError(op string, key kv.Key, err error) error {
	if err == nil {
		return nil
	}
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return &kv.ConditionFailedError{Key: key}
	}
	b.logger.Error().Err(err).Str("op", op).Str("pk", key.PK).Str("sk", key.SK).Msg("write failed")
	return wrapError(op, err)
}

// TransactWrite maps items onto TransactWriteItems.
func (b *Backend) TransactWrite(ctx context.Context, items []kv.TransactItem) error {
	writes := make([]types.TransactWriteItem, 0, len(items))
	for _, item := range items {
		var w types.TransactWriteItem
		var err error
		switch {
		case item.Put != nil:
			w.Put, err = b.putInput(*item.Put)
		case item.Update != nil:
			w.Update, err = b.updateInput(*item.Update)
		case item.Delete != nil:
			w.Delete, err = b.deleteInput(*item.Delete)
		default:
			err = errors.New("empty transaction item")
		}
		if err != nil {
			return &kv.BackendError{Op: "transact_write", Code: kv.ReasonValidationError, Message: err.Error(), Err: err}
		}
		writes = append(writes, w)
	}

	_, err := b.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: writes})
	if err == nil {
		return nil
	}

	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		reasons := make([]kv.CancelReason, len(items))
		for i := range reasons {
			reasons[i] = kv.CancelReason{Code: kv.ReasonNone}
			if i < len(tce.CancellationReasons) {
				r := tce.CancellationReasons[i]
				if code := aws.ToString(r.Code); code != "" {
					reasons[i].Code = code
				}
				reasons[i].Message = aws.ToString(r.Message)
			}
		}
		canceled := &kv.TransactionCanceledError{Reasons: reasons}
		b.logger.Debug().Str("reasons", canceled.Error()).Msg("transaction cancelled")
		return canceled
	}

	b.logger.Error().Err(err).Int("items", len(items)).Msg("transaction failed")
	return wrapError("transact_write", err)
}

func (b *Backend) putInput(put kv.Put) (*types.Put, error) {
	item, err := toItem(put.Item)
	if err != nil {
		return nil, err
	}
	e := newExpression()
	cond, err := e.condition(put.Conditions)
	if err != nil {
		return nil, err
	}
	return &types.Put{
		TableName:                 aws.String(b.table),
		Item:                      item,
		ConditionExpression:       cond,
		ExpressionAttributeNames:  e.attributeNames(),
		ExpressionAttributeValues: e.attributeValues(),
	}, nil
}

func (b *Backend) updateInput(update kv.Update) (*types.Update, error) {
	e := newExpression()
	expr, err := e.update(update)
	if err != nil {
		return nil, err
	}
	cond, err := e.condition(update.Conditions)
	if err != nil {
		return nil, err
	}
	return &types.Update{
		TableName:                 aws.String(b.table),
		Key:                       keyAttributes(update.Key),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       cond,
		ExpressionAttributeNames:  e.attributeNames(),
		ExpressionAttributeValues: e.attributeValues(),
	}, nil
}

func (b *Backend) deleteInput(del kv.Delete) (*types.Delete, error) {
	e := newExpression()
	cond, err := e.condition(del.Conditions)
	if err != nil {
		return nil, err
	}
	return &types.Delete{
		TableName:                 aws.String(b.table),
		Key:                       keyAttributes(del.Key),
		ConditionExpression:       cond,
		ExpressionAttributeNames:  e.attributeNames(),
		ExpressionAttributeValues: e.attributeValues(),
	}, nil
}

// expression accumulates placeholder names and values for one request.
type expression struct {
	names        map[string]string
	placeholders map[string]string
	values       map[string]types.AttributeValue
	n            int
}

func newExpression() *expression {
	return &expression{
		names:        map[string]string{},
		placeholders: map[string]string{},
		values:       map[string]types.AttributeValue{},
	}
}

func (e *expression) name(attr string) string {
	if p, ok := e.placeholders[attr]; ok {
		return p
	}
	placeholder := "#pk"
	if attr != attrPK {
		e.n++
		placeholder = fmt.Sprintf("#a%d", e.n)
	}
	e.placeholders[attr] = placeholder
	e.names[placeholder] = attr
	return placeholder
}

func (e *expression) value(v any) (string, error) {
	av, err := toAttributeValue(v)
	if err != nil {
		return "", err
	}
	e.n++
	placeholder := fmt.Sprintf(":v%d", e.n)
	e.values[placeholder] = av
	return placeholder, nil
}

func (e *expression) condition(conds []kv.Condition) (*string, error) {
	if len(conds) == 0 {
		return nil, nil
	}
	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		switch c.Kind {
		case kv.CondExists:
			parts = append(parts, fmt.Sprintf("attribute_exists(%s)", e.name(attrPK)))
		case kv.CondNotExists:
			parts = append(parts, fmt.Sprintf("attribute_not_exists(%s)", e.name(attrPK)))
		case kv.CondAtLeast:
			n := e.name(c.Attribute)
			v, err := e.value(c.Value)
			if err != nil {
				return nil, err
			}
			parts = append(parts, fmt.Sprintf("%s >= %s", n, v))
		case kv.CondNotEqual:
			n := e.name(c.Attribute)
			v, err := e.value(c.Value)
			if err != nil {
				return nil, err
			}
			parts = append(parts, fmt.Sprintf("(attribute_not_exists(%s) OR %s <> %s)", n, n, v))
		default:
			return nil, fmt.Errorf("unknown condition kind %d", c.Kind)
		}
	}
	return aws.String(strings.Join(parts, " AND ")), nil
}

func (e *expression) update(u kv.Update) (string, error) {
	var sets, adds []string

	for _, attr := range sortedKeys(u.Set) {
		n := e.name(attr)
		v, err := e.value(u.Set[attr])
		if err != nil {
			return "", fmt.Errorf("attribute %q: %w", attr, err)
		}
		sets = append(sets, fmt.Sprintf("%s = %s", n, v))
	}
	for _, attr := range sortedKeys(u.Add) {
		n := e.name(attr)
		v, err := e.value(u.Add[attr])
		if err != nil {
			return "", err
		}
		adds = append(adds, fmt.Sprintf("%s %s", n, v))
	}

	var clauses []string
	if len(sets) > 0 {
		clauses = append(clauses, "SET "+strings.Join(sets, ", "))
	}
	if len(adds) > 0 {
		clauses = append(clauses, "ADD "+strings.Join(adds, ", "))
	}
	if len(clauses) == 0 {
		return "", errors.New("update has no attributes to change")
	}
	return strings.Join(clauses, " "), nil
}

func (e *expression) attributeNames() map[string]string {
	if len(e.names) == 0 {
		return nil
	}
	return e.names
}

func (e *expression) attributeValues() map[string]types.AttributeValue {
	if len(e.values) == 0 {
		return nil
	}
	return e.values
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func keyAttributes(key kv.Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPK: &types.AttributeValueMemberS{Value: key.PK},
		attrSK: &types.AttributeValueMemberS{Value: key.SK},
	}
}

func toItem(item kv.Item) (map[string]types.AttributeValue, error) {
	out := keyAttributes(item.Key)
	for name, v := range item.Attributes {
		if name == attrPK || name == attrSK {
			return nil, fmt.Errorf("attribute name %q is reserved", name)
		}
		av, err := toAttributeValue(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		out[name] = av
	}
	return out, nil
}

func fromItem(raw map[string]types.AttributeValue) (kv.Item, error) {
	var item kv.Item
	attrs := make(kv.Attributes, len(raw))
	for name, av := range raw {
		v, err := fromAttributeValue(av)
		if err != nil {
			return kv.Item{}, fmt.Errorf("attribute %q: %w", name, err)
		}
		switch name {
		case attrPK:
			item.Key.PK, _ = v.(string)
		case attrSK:
			item.Key.SK, _ = v.(string)
		default:
			attrs[name] = v
		}
	}
	item.Attributes = attrs
	return item, nil
}

func toAttributeValue(v any) (types.AttributeValue, error) {
	n, err := kv.Normalize(v)
	if err != nil {
		return nil, err
	}
	switch t := n.(type) {
	case nil:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case string:
		return &types.AttributeValueMemberS{Value: t}, nil
	case bool:
		return &types.AttributeValueMemberBOOL{Value: t}, nil
	case decimal.Decimal:
		return &types.AttributeValueMemberN{Value: t.String()}, nil
	default:
		return nil, fmt.Errorf("unsupported attribute type %T", n)
	}
}

func fromAttributeValue(av types.AttributeValue) (any, error) {
	switch t := av.(type) {
	case *types.AttributeValueMemberS:
		return t.Value, nil
	case *types.AttributeValueMemberN:
		d, err := decimal.NewFromString(t.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", t.Value, err)
		}
		return d, nil
	case *types.AttributeValueMemberBOOL:
		return t.Value, nil
	case *types.AttributeValueMemberNULL:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported attribute value %T", av)
	}
}

// retryableCodes are DynamoDB error codes for transient failures.
var retryableCodes = map[string]bool{
	"ProvisionedThroughputExceededException": true,
	"ThrottlingException":                    true,
	"RequestLimitExceeded":                   true,
	"InternalServerError":                    true,
	"ServiceUnavailable":                     true,
	"TransactionConflictException":           true,
	"TransactionInProgressException":         true,
}

func wrapError(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return &kv.BackendError{
			Op:        op,
			Code:      apiErr.ErrorCode(),
			Message:   apiErr.ErrorMessage(),
			Retryable: retryableCodes[apiErr.ErrorCode()],
			Err:       err,
		}
	}
	return &kv.BackendError{
		Op:        op,
		Message:   err.Error(),
		Retryable: errors.Is(err, context.DeadlineExceeded),
		Err:       err,
	}
}
