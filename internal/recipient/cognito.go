package recipient

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/rs/zerolog"
)

const attrEmail = "email"

// CognitoAPI is the subset of the Cognito user pool client the directory calls.
type CognitoAPI interface {
	ListUsersInGroup(ctx context.Context, params *cip.ListUsersInGroupInput, optFns ...func(*cip.Options)) (*cip.ListUsersInGroupOutput, error)
}

// cognitoDirectory lists the members of a user pool group.
type cognitoDirectory struct {
	client     CognitoAPI
	userPoolID string
	group      string
	logger     zerolog.Logger
}

// NewCognitoDirectory creates a directory returning the e-mail addresses of
// the enabled members of group in the given user pool.
func NewCognitoDirectory(client CognitoAPI, userPoolID, group string, logger zerolog.Logger) Directory {
	return &cognitoDirectory{
		client:     client,
		userPoolID: userPoolID,
		group:      group,
		logger:     logger.With().Str("component", "cognito-directory").Logger(),
	}
}

// Managers pages through the group. Users without an e-mail attribute and
// disabled users are skipped.
func (d *cognitoDirectory) Managers(ctx context.Context) ([]string, error) {
	input := &cip.ListUsersInGroupInput{
		UserPoolId: aws.String(d.userPoolID),
		GroupName:  aws.String(d.group),
	}

	emails := make([]string, 0)
	for {
		out, err := d.client.ListUsersInGroup(ctx, input)
		if err != nil {
			d.logger.Error().
				Err(err).
				Str("user_pool_id", d.userPoolID).
				Str("group", d.group).
				Msg("failed to list users in group")
			return nil, fmt.Errorf("failed to list users in group %s: %w", d.group, err)
		}

		for _, user := range out.Users {
			if !user.Enabled {
				continue
			}
			if email := emailOf(user); email != "" {
				emails = append(emails, email)
			}
		}

		if aws.ToString(out.NextToken) == "" {
			break
		}
		input.NextToken = out.NextToken
	}

	d.logger.Debug().
		Str("group", d.group).
		Int("recipients", len(emails)).
		Msg("resolved alert recipients")

	return emails, nil
}

func emailOf(user types.UserType) string {
	for _, attr := range user.Attributes {
		if aws.ToString(attr.Name) == attrEmail {
			return aws.ToString(attr.Value)
		}
	}
	return ""
}
