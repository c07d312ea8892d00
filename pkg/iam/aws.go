package iam

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsiam "github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"

	"github.com/glauth/iamldap/internal/awscfg"
	"github.com/glauth/iamldap/pkg/config"
)

// GroupAPI is the part of the AWS IAM client used to list group members
type GroupAPI interface {
	GetGroup(ctx context.Context, params *awsiam.GetGroupInput, optFns ...func(*awsiam.Options)) (*awsiam.GetGroupOutput, error)
}

type awsClient struct {
	api GroupAPI
}

// NewClient wraps an IAM API implementation
func NewClient(api GroupAPI) Client {
	return &awsClient{api: api}
}

// NewAWSClient builds a Client talking to AWS IAM
func NewAWSClient(ctx context.Context, cfg config.AWS) (Client, error) {
	awsCfg, err := awscfg.Load(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS configuration: %w", err)
	}

	api := awsiam.NewFromConfig(awsCfg, func(o *awsiam.Options) {
		if endpoint := awscfg.Endpoint(cfg); endpoint != nil {
			o.BaseEndpoint = endpoint
		}
	})

	return NewClient(api), nil
}

func (c *awsClient) GetGroupPage(ctx context.Context, groupName, marker string) (*Page, error) {
	input := &awsiam.GetGroupInput{
		GroupName: aws.String(groupName),
	}
	if marker != "" {
		input.Marker = aws.String(marker)
	}

	out, err := c.api.GetGroup(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("iam: get group %s: %w", groupName, err)
	}

	page := &Page{
		Members:     make([]Member, 0, len(out.Users)),
		IsTruncated: out.IsTruncated,
		Marker:      aws.ToString(out.Marker),
	}

	for _, u := range out.Users {
		page.Members = append(page.Members, member(u))
	}

	if page.IsTruncated && page.Marker == "" {
		return nil, ErrTruncatedWithoutMarker
	}

	return page, nil
}

func member(u types.User) Member {
	return Member{
		UserName:   aws.ToString(u.UserName),
		UserID:     aws.ToString(u.UserId),
		Path:       aws.ToString(u.Path),
		Arn:        aws.ToString(u.Arn),
		CreateDate: aws.ToTime(u.CreateDate),
	}
}
