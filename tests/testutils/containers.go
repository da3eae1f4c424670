package testutils

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	chContainer "github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	ClickHouseContainerImage = "clickhouse/clickhouse-server:23.3.8.21-alpine"
	ClickHousePort           = "9000/tcp"
)

// ClickHouseContainer wraps a ClickHouse testcontainer
type ClickHouseContainer struct {
	container *chContainer.ClickHouseContainer
}

// StartClickHouseContainer starts a ClickHouse container
func StartClickHouseContainer(ctx context.Context) (*ClickHouseContainer, error) {
	container, err := chContainer.Run(
		ctx,
		ClickHouseContainerImage,
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/").
				WithPort("8123/tcp").
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start ClickHouse container %w", err)
	}

	return &ClickHouseContainer{
		container: container,
	}, nil
}

// DSN returns a native protocol DSN for the container's default database.
func (c *ClickHouseContainer) DSN(ctx context.Context) (string, error) {
	port, err := c.container.MappedPort(ctx, nat.Port(ClickHousePort))
	if err != nil {
		return "", fmt.Errorf("failed to get mapped port of ClickHouse container %w", err)
	}

	host, err := c.container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get host of ClickHouse container %w", err)
	}

	dsn := url.URL{
		Scheme: "clickhouse",
		User:   url.UserPassword(c.container.User, c.container.Password),
		Host:   net.JoinHostPort(host, port.Port()),
		Path:   "/" + c.container.DbName,
	}
	return dsn.String(), nil
}

// Stop stops the container
func (c *ClickHouseContainer) Stop(ctx context.Context) error {
	if os.Getenv("JDBC_SINK_REUSE_TESTCONTAINERS") == "true" {
		return nil
	}

	err := c.container.Terminate(ctx)
	if err != nil {
		return fmt.Errorf("failed to stop ClickHouse container %w", err)
	}

	return nil
}
