// Package notify delivers low-stock events to interested parties.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"stockwatch/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/rs/zerolog"
)

// AttributeEventType is the SNS message attribute subscribers filter on.
const AttributeEventType = "eventType"

// maxSubjectLength is the longest subject SNS accepts, in characters.
const maxSubjectLength = 99

// Publisher delivers a low-stock event.
type Publisher interface {
	Publish(ctx context.Context, event *model.LowStockEvent) error
}

// SNSAPI is the subset of the SNS client the publisher calls.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// snsPublisher publishes events as JSON messages to an SNS topic.
type snsPublisher struct {
	client   SNSAPI
	topicARN string
	logger   zerolog.Logger
}

// NewSNSPublisher creates a publisher for topicARN.
func NewSNSPublisher(client SNSAPI, topicARN string, logger zerolog.Logger) Publisher {
	return &snsPublisher{
		client:   client,
		topicARN: topicARN,
		logger:   logger.With().Str("component", "sns-publisher").Logger(),
	}
}

// Publish sends event to the topic with an eventType message attribute.
func (p *snsPublisher) Publish(ctx context.Context, event *model.LowStockEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode low stock event: %w", err)
	}

	out, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Subject:  aws.String(subject(event)),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			AttributeEventType: {
				DataType:    aws.String("String"),
				StringValue: aws.String(event.EventType),
			},
		},
	})
	if err != nil {
		p.logger.Error().
			Err(err).
			Str("product_id", event.ProductID).
			Str("topic_arn", p.topicARN).
			Msg("failed to publish low stock event")
		return fmt.Errorf("failed to publish low stock event for product %s: %w", event.ProductID, err)
	}

	p.logger.Info().
		Str("product_id", event.ProductID).
		Str("message_id", aws.ToString(out.MessageId)).
		Int("recipients", len(event.Recipients)).
		Msg("low stock event published")

	return nil
}

func subject(event *model.LowStockEvent) string {
	s := fmt.Sprintf("Low stock: %s (%d left)", event.ProductName, event.CurrentQuantity)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	if runes := []rune(s); len(runes) > maxSubjectLength {
		s = string(runes[:maxSubjectLength])
	}
	return s
}

// logPublisher writes events to the log. It stands in for SNS in local runs.
type logPublisher struct {
	logger zerolog.Logger
}

// NewLogPublisher creates a publisher that only logs.
func NewLogPublisher(logger zerolog.Logger) Publisher {
	return &logPublisher{
		logger: logger.With().Str("component", "log-publisher").Logger(),
	}
}

func (p *logPublisher) Publish(ctx context.Context, event *model.LowStockEvent) error {
	p.logger.Warn().
		Str("event_type", event.EventType).
		Str("product_id", event.ProductID).
		Str("product_name", event.ProductName).
		Str("category", event.Category).
		Int64("current_quantity", event.CurrentQuantity).
		Int64("threshold", event.Threshold).
		Strs("recipients", event.Recipients).
		Msg("low stock alert")
	return nil
}
