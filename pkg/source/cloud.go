package source

import (
	"context"
	"fmt"
	"net/http"

	"cloud.google.com/go/storage"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/googleapis/gax-go/v2"
	"gocloud.dev/blob"
	"gocloud.dev/blob/azureblob"
	"gocloud.dev/blob/gcsblob"
	"gocloud.dev/blob/s3blob"
	"gocloud.dev/gcp"
	"golang.org/x/oauth2"
)

// S3Params configures OpenS3Bucket.
// Credentials are optional, the default AWS credentials chain is used if AccessKeyID is empty.
type S3Params struct {
	Bucket          string
	Region          string
	Endpoint        string // custom endpoint, for example MinIO
	PathStyle       bool
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// GCSParams configures OpenGCSBucket.
type GCSParams struct {
	Bucket      string
	AccessToken string
	TokenType   string
}

// AzureParams configures OpenAzureBucket.
type AzureParams struct {
	// ContainerURL including a SAS token, for example "https://account.blob.core.windows.net/container?sv=...".
	ContainerURL string
}

// OpenS3Bucket opens an AWS S3 bucket, transport is optional.
func OpenS3Bucket(ctx context.Context, params S3Params, transport http.RoundTripper) (*blob.Bucket, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(params.Region)}
	if params.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				params.AccessKeyID,
				params.SecretAccessKey,
				params.SessionToken,
			),
		))
	}
	if transport != nil {
		opts = append(opts, config.WithHTTPClient(&http.Client{Transport: transport}))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("cannot load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if params.Endpoint != "" {
			o.BaseEndpoint = aws.String(params.Endpoint)
		}
		o.UsePathStyle = params.PathStyle
	})
	return s3blob.OpenBucketV2(ctx, client, params.Bucket, nil)
}

// OpenGCSBucket opens a Google Cloud Storage bucket using a static OAuth2 token, transport is optional.
func OpenGCSBucket(ctx context.Context, params GCSParams, transport http.RoundTripper) (*blob.Bucket, error) {
	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: params.AccessToken,
		TokenType:   params.TokenType,
	})

	if transport == nil {
		transport = gcp.DefaultTransport()
	}
	client, err := gcp.NewHTTPClient(transport, tokenSource)
	if err != nil {
		return nil, err
	}

	b, err := gcsblob.OpenBucket(ctx, client, params.Bucket, nil)
	if err != nil {
		return nil, err
	}

	var gcsClient *storage.Client
	if b.As(&gcsClient) {
		gcsClient.SetRetry(
			storage.WithBackoff(gax.Backoff{}),
			storage.WithPolicy(storage.RetryIdempotent),
		)
	}
	return b, nil
}

// OpenAzureBucket opens an Azure Blob Storage container using a SAS URL, transport is optional.
func OpenAzureBucket(ctx context.Context, params AzureParams, transport http.RoundTripper) (*blob.Bucket, error) {
	opts := &container.ClientOptions{}
	if transport != nil {
		opts.ClientOptions = azcore.ClientOptions{Transport: &http.Client{Transport: transport}}
	}

	client, err := container.NewClientWithNoCredential(params.ContainerURL, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot create Azure container client: %w", err)
	}
	return azureblob.OpenBucket(ctx, client, nil)
}
