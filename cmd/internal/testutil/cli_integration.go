//go:build integration

package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/network"
	"github.com/testcontainers/testcontainers-go/wait"

	_ "github.com/go-sql-driver/mysql"
)

const (
	mysqlImage    = "mysql:8.0.36"
	mysqlAlias    = "mysql"
	mysqlDatabase = "adms"
	mysqlUser     = "root"
	mysqlPassword = "secret"
	mysqlStartup  = 2 * time.Minute

	cliImage       = "alpine:3.20"
	cliPath        = "/usr/local/bin/cli"
	cliExitTimeout = 2 * time.Minute
)

// MySQLContainer is a MySQL server reachable from the host through DB and
// from containers on Network through DSN.
type MySQLContainer struct {
	Container testcontainers.Container
	Network   *testcontainers.DockerNetwork
	DB        *sql.DB
	DSN       string
}

// CLIRun describes one invocation of a binary inside a container.
type CLIRun struct {
	Binary  string
	Network string
	Args    []string
	Env     map[string]string
}

// StartMySQLContainer starts MySQL on a fresh network. The test is skipped
// when Docker is unavailable.
func StartMySQLContainer(t *testing.T, ctx context.Context) MySQLContainer {
	t.Helper()

	net, err := network.New(ctx)
	if err != nil {
		t.Skipf("create network: %v", err)
	}
	t.Cleanup(func() {
		_ = net.Remove(ctx)
	})

	port := nat.Port("3306/tcp")
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        mysqlImage,
			ExposedPorts: []string{string(port)},
			Env: map[string]string{
				"MYSQL_ROOT_PASSWORD": mysqlPassword,
				"MYSQL_DATABASE":      mysqlDatabase,
			},
			Networks:       []string{net.Name},
			NetworkAliases: map[string][]string{net.Name: {mysqlAlias}},
			WaitingFor: wait.ForSQL(port, "mysql", func(host string, port nat.Port) string {
				return mysqlDSN(host, port.Port())
			}).WithStartupTimeout(mysqlStartup),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("start mysql container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("resolve host: %v", err)
	}
	mapped, err := container.MappedPort(ctx, port)
	if err != nil {
		t.Fatalf("resolve port: %v", err)
	}

	db, err := sql.Open("mysql", mysqlDSN(host, mapped.Port()))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	return MySQLContainer{
		Container: container,
		Network:   net,
		DB:        db,
		DSN:       mysqlDSN(mysqlAlias, port.Port()),
	}
}

func mysqlDSN(host, port string) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true", mysqlUser, mysqlPassword, host, port, mysqlDatabase)
}

// BuildBinary compiles pkg as a static linux binary.
func BuildBinary(t *testing.T, pkg string) string {
	t.Helper()

	name := filepath.Base(pkg)
	if name == "." {
		wd, err := os.Getwd()
		if err != nil {
			t.Fatalf("resolve working dir: %v", err)
		}
		name = filepath.Base(wd)
	}

	bin := filepath.Join(t.TempDir(), name)
	cmd := exec.Command("go", "build", "-o", bin, pkg)
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0", "GOOS=linux", "GOARCH="+runtime.GOARCH)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("build %s: %v\n%s", pkg, err, out)
	}

	return bin
}

// RunCLI runs a binary to completion and returns its exit code and output.
func RunCLI(t *testing.T, ctx context.Context, run CLIRun) (int, string) {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:      cliImage,
			Entrypoint: []string{cliPath},
			Cmd:        run.Args,
			Env:        run.Env,
			Networks:   []string{run.Network},
			Files: []testcontainers.ContainerFile{{
				HostFilePath:      run.Binary,
				ContainerFilePath: cliPath,
				FileMode:          0o755,
			}},
			WaitingFor: wait.ForExit().WithExitTimeout(cliExitTimeout),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start cli container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	state, err := container.State(ctx)
	if err != nil {
		t.Fatalf("read cli state: %v", err)
	}

	logs, err := container.Logs(ctx)
	if err != nil {
		t.Fatalf("read cli logs: %v", err)
	}
	defer logs.Close()

	out, err := io.ReadAll(logs)
	if err != nil {
		t.Fatalf("read cli logs: %v", err)
	}

	return state.ExitCode, string(out)
}
