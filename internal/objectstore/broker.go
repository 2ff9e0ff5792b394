// Package objectstore brokers scoped, temporary credentials workloads use
// to sync volumes to the shared bucket. Every credential is constrained
// to the {bucket}/{namespace}/… prefix via an inline STS policy, so one
// compromised container can't read or write another namespace's data.
package objectstore

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/aws-sdk-go-v2/service/sts/types"

	"nebulous/internal/config"
)

// Credential is a time-boxed, prefix-scoped set of S3 credentials.
type Credential struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expiration      time.Time
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
}

// Broker mints scoped credentials via AWS STS AssumeRole.
type Broker struct {
	sts    *sts.Client
	cfg    config.ObjectStoreConfig
	roleArn string
}

func NewBroker(ctx context.Context, cfg config.ObjectStoreConfig) (*Broker, error) {
	if cfg.AssumeRoleARN == "" {
		return nil, fmt.Errorf("objectstore: OBJECT_STORE_ASSUME_ROLE_ARN is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("objectstore: load aws config: %w", err)
	}

	stsClient := sts.NewFromConfig(awsCfg, func(o *sts.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &Broker{sts: stsClient, cfg: cfg, roleArn: cfg.AssumeRoleARN}, nil
}

// MintScopedCredential assumes the configured role with an inline policy
// that only allows GetObject/PutObject/DeleteObject/ListBucket under
// {bucket}/{namespace}/…, and returns credentials the workload consumes
// via standard RCLONE_*/AWS_* environment variables.
func (b *Broker) MintScopedCredential(ctx context.Context, bucket, namespace, containerID string) (Credential, error) {
	prefix := fmt.Sprintf("%s/", namespace)
	policy := scopedPolicyDocument(bucket, prefix)

	out, err := b.sts.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(b.roleArn),
		RoleSessionName: aws.String(fmt.Sprintf("nebu-%s", containerID)),
		Policy:          aws.String(policy),
		DurationSeconds: aws.Int32(3600),
		Tags: []types.Tag{
			{Key: aws.String("nebu-container-id"), Value: aws.String(containerID)},
			{Key: aws.String("nebu-namespace"), Value: aws.String(namespace)},
		},
	})
	if err != nil {
		return Credential{}, fmt.Errorf("objectstore: assume role: %w", err)
	}

	creds := out.Credentials
	return Credential{
		AccessKeyID:     aws.ToString(creds.AccessKeyId),
		SecretAccessKey: aws.ToString(creds.SecretAccessKey),
		SessionToken:    aws.ToString(creds.SessionToken),
		Expiration:      aws.ToTime(creds.Expiration),
		Bucket:          bucket,
		Prefix:          prefix,
		Region:          b.cfg.Region,
		Endpoint:        b.cfg.Endpoint,
	}, nil
}

func scopedPolicyDocument(bucket, prefix string) string {
	return fmt.Sprintf(`{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Effect": "Allow",
      "Action": ["s3:GetObject", "s3:PutObject", "s3:DeleteObject"],
      "Resource": "arn:aws:s3:::%s/%s*"
    },
    {
      "Effect": "Allow",
      "Action": ["s3:ListBucket"],
      "Resource": "arn:aws:s3:::%s",
      "Condition": {"StringLike": {"s3:prefix": ["%s*"]}}
    }
  ]
}`, bucket, prefix, bucket, prefix)
}

// Env renders the credential as the RCLONE_*/AWS_* environment variables
// the in-container sync sidecar expects.
func (c Credential) Env() map[string]string {
	env := map[string]string{
		"AWS_ACCESS_KEY_ID":          c.AccessKeyID,
		"AWS_SECRET_ACCESS_KEY":      c.SecretAccessKey,
		"AWS_SESSION_TOKEN":          c.SessionToken,
		"RCLONE_CONFIG_S3_TYPE":      "s3",
		"RCLONE_CONFIG_S3_PROVIDER":  "AWS",
		"RCLONE_CONFIG_S3_ACCESS_KEY_ID":     c.AccessKeyID,
		"RCLONE_CONFIG_S3_SECRET_ACCESS_KEY": c.SecretAccessKey,
		"RCLONE_CONFIG_S3_SESSION_TOKEN":     c.SessionToken,
		"RCLONE_CONFIG_S3_REGION":    c.Region,
	}
	if c.Endpoint != "" {
		env["RCLONE_CONFIG_S3_ENDPOINT"] = c.Endpoint
	}
	return env
}
