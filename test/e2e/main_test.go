//go:build e2e

// Package e2e runs the scanner against a LocalStack container: real SDK
// wire traffic, fake cloud. Requires Docker. Build with -tags e2e.
package e2e

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/localstack"
)

const localstackImage = "localstack/localstack:3.0.2"

// endpointURL points every test at the container. Set once in TestMain.
var endpointURL string

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := localstack.Run(ctx, localstackImage,
		testcontainers.WithEnv(map[string]string{
			"SERVICES": "ec2,sts,cloudwatch",
		}),
	)
	if err != nil {
		fmt.Printf("start localstack: %v\n", err)
		os.Exit(1)
	}

	endpointURL, err = container.PortEndpoint(ctx, "4566/tcp", "http")
	if err != nil {
		fmt.Printf("resolve localstack endpoint: %v\n", err)
		_ = container.Terminate(ctx)
		os.Exit(1)
	}
	fmt.Printf("localstack ready at %s\n", endpointURL)

	// LocalStack accepts any well-formed credentials.
	os.Setenv("AWS_ACCESS_KEY_ID", "test")
	os.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	os.Setenv("AWS_REGION", "us-east-1")

	code := m.Run()

	if err := container.Terminate(ctx); err != nil {
		fmt.Printf("terminate localstack: %v\n", err)
	}
	os.Exit(code)
}
