package blob

import (
	"context"

	infraS3 "chemledger/internal/infra/blob/s3"
)

// S3Config re-exports the infra S3 configuration type.
type S3Config = infraS3.Config

// S3Mock is the in-process S3 endpoint returned by NewMockS3ForTests.
type S3Mock = infraS3.Mock

// NewS3 constructs an S3-backed blob.Store from the provided configuration.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	st, err := infraS3.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// NewMockS3ForTests exposes the in-process mock for cross-package tests.
func NewMockS3ForTests() (Store, *S3Mock) {
	st, mock := infraS3.NewMockForTests()
	return st, mock
}
