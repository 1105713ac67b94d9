package cloudcli

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stackpilot/stackpilot/pkg/cliexec"
	"github.com/stackpilot/stackpilot/pkg/failure"
	"github.com/stackpilot/stackpilot/pkg/orchestrate"
)

// Mock runner for testing. Responses are consumed in call order; each is
// either a canned invocation or a spawn error.
type mockRunner struct {
	argvs     [][]string
	responses []mockResponse
}

type mockResponse struct {
	exitCode int
	output   string
	spawnErr error
}

func (m *mockRunner) respond(exitCode int, output string) {
	m.responses = append(m.responses, mockResponse{exitCode: exitCode, output: output})
}

func (m *mockRunner) Run(ctx context.Context, argv []string) (*cliexec.Invocation, error) {
	m.argvs = append(m.argvs, argv)
	if len(m.responses) == 0 {
		return &cliexec.Invocation{Argv: argv}, nil
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	if resp.spawnErr != nil {
		return nil, resp.spawnErr
	}
	return &cliexec.Invocation{Argv: argv, ExitCode: resp.exitCode, Output: resp.output}, nil
}

func (m *mockRunner) lastArgv() []string {
	if len(m.argvs) == 0 {
		return nil
	}
	return m.argvs[len(m.argvs)-1]
}

func argvContains(argv []string, want ...string) bool {
	joined := " " + strings.Join(argv, " ") + " "
	for _, w := range want {
		if !strings.Contains(joined, " "+w+" ") {
			return false
		}
	}
	return true
}

func TestCreateGroupArgvAndParsing(t *testing.T) {
	runner := &mockRunner{}
	runner.respond(0, `{"id": "/subscriptions/s1/resourceGroups/shop-prod-rg", "name": "shop-prod-rg"}`)
	plane := New(runner)

	id, err := plane.CreateGroup(context.Background(), orchestrate.GroupSpec{
		Name:     "shop-prod-rg",
		Location: "westeurope",
		Tags:     map[string]string{"project": "shop"},
	})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if id != "/subscriptions/s1/resourceGroups/shop-prod-rg" {
		t.Errorf("id = %q", id)
	}

	argv := runner.lastArgv()
	if argv[0] != "az" {
		t.Errorf("binary = %q, want az", argv[0])
	}
	if !argvContains(argv, "group", "create", "--name", "shop-prod-rg", "--location", "westeurope", "--tags", "project=shop") {
		t.Errorf("argv = %v", argv)
	}
}

// Vendor CLIs sometimes print warnings before the JSON payload on the same
// stream. Parsing starts at the first brace.
func TestParseSkipsWarningPrefix(t *testing.T) {
	runner := &mockRunner{}
	runner.respond(0, "WARNING: the 'acr' extension is in preview\n"+
		`{"id": "/registries/shopprodacr", "loginServer": "shopprodacr.azurecr.io"}`)
	plane := New(runner)

	reg, err := plane.CreateRegistry(context.Background(), "shop-prod-rg", "shopprodacr")
	if err != nil {
		t.Fatalf("CreateRegistry: %v", err)
	}
	if reg.LoginServer != "shopprodacr.azurecr.io" {
		t.Errorf("LoginServer = %q", reg.LoginServer)
	}
	if reg.ID != "/registries/shopprodacr" {
		t.Errorf("ID = %q", reg.ID)
	}
}

func TestUnparseableOutputIsPermanent(t *testing.T) {
	runner := &mockRunner{}
	runner.respond(0, "this is not json at all")
	plane := New(runner)

	_, err := plane.CreateRegistry(context.Background(), "shop-prod-rg", "shopprodacr")
	if err == nil {
		t.Fatal("expected a parse error")
	}
	if failure.ClassOf(err) != failure.ClassPermanent {
		t.Errorf("class = %v, want permanent", failure.ClassOf(err))
	}
}

// Nonzero exits are classified from the combined output, so the retry
// engine can tell throttling from name collisions.
func TestNonzeroExitClassification(t *testing.T) {
	tests := []struct {
		name   string
		output string
		class  failure.Class
	}{
		{"throttled", "ERROR: too many requests, retry after 30 seconds", failure.ClassThrottled},
		{"collision", "ERROR: the server name is already in use", failure.ClassPermanent},
		{"timeout", "ERROR: connection timed out", failure.ClassTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &mockRunner{}
			runner.respond(1, tt.output)
			plane := New(runner)

			_, err := plane.CreateGroup(context.Background(), orchestrate.GroupSpec{Name: "g", Location: "l"})
			if err == nil {
				t.Fatal("expected an error for exit 1")
			}
			if got := failure.ClassOf(err); got != tt.class {
				t.Errorf("class = %v, want %v", got, tt.class)
			}
		})
	}
}

func TestSpawnFailureIsPermanent(t *testing.T) {
	runner := &mockRunner{}
	runner.responses = append(runner.responses, mockResponse{spawnErr: errors.New(`exec: "az": executable file not found in $PATH`)})
	plane := New(runner)

	_, err := plane.CreateGroup(context.Background(), orchestrate.GroupSpec{Name: "g", Location: "l"})
	if err == nil {
		t.Fatal("expected an error")
	}
	if failure.ClassOf(err) != failure.ClassPermanent {
		t.Errorf("class = %v, want permanent", failure.ClassOf(err))
	}
}

// Directory replication lag shows up as a "not found" exit from the lookup.
// That answer means "not visible yet", never an error.
func TestIdentityVisibleNotFoundMeansNotYet(t *testing.T) {
	runner := &mockRunner{}
	runner.respond(1, "ERROR: resource principal-1 does not exist or one of its queried reference-property objects are not present")
	plane := New(runner)

	visible, err := plane.IdentityVisible(context.Background(), "principal-1")
	if err != nil {
		t.Fatalf("IdentityVisible: %v", err)
	}
	if visible {
		t.Error("visible = true, want false")
	}
	if !argvContains(runner.lastArgv(), "ad", "sp", "show", "--id", "principal-1") {
		t.Errorf("argv = %v", runner.lastArgv())
	}
}

func TestIdentityVisibleSuccess(t *testing.T) {
	runner := &mockRunner{}
	runner.respond(0, `{"id": "principal-1"}`)
	plane := New(runner)

	visible, err := plane.IdentityVisible(context.Background(), "principal-1")
	if err != nil {
		t.Fatalf("IdentityVisible: %v", err)
	}
	if !visible {
		t.Error("visible = false, want true")
	}
}

func TestCreateDatabaseRunsServerThenDatabase(t *testing.T) {
	runner := &mockRunner{}
	runner.respond(0, `{"fullyQualifiedDomainName": "shop-prod-sql.database.windows.net"}`)
	runner.respond(0, `{"name": "shopdb"}`)
	plane := New(runner)

	fqdn, err := plane.CreateDatabase(context.Background(), orchestrate.DatabaseSpec{
		Group:         "shop-prod-rg",
		Server:        "shop-prod-sql",
		Database:      "shopdb",
		Location:      "westeurope",
		AdminUser:     "shopadmin",
		AdminPassword: "s3cret",
	})
	if err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}
	if fqdn != "shop-prod-sql.database.windows.net" {
		t.Errorf("fqdn = %q", fqdn)
	}
	if len(runner.argvs) != 2 {
		t.Fatalf("invocations = %d, want 2", len(runner.argvs))
	}
	if !argvContains(runner.argvs[0], "sql", "server", "create", "--admin-user", "shopadmin") {
		t.Errorf("server argv = %v", runner.argvs[0])
	}
	if !argvContains(runner.argvs[1], "sql", "db", "create", "--server", "shop-prod-sql", "--name", "shopdb") {
		t.Errorf("db argv = %v", runner.argvs[1])
	}
}

func TestApplySchemaUsesSQLClient(t *testing.T) {
	runner := &mockRunner{}
	runner.respond(0, "")
	plane := New(runner, WithSQLBin("sqlcmd18"))

	err := plane.ApplySchema(context.Background(), orchestrate.DatabaseSpec{
		Database:      "shopdb",
		AdminUser:     "shopadmin",
		AdminPassword: "s3cret",
	}, "shop-prod-sql.database.windows.net", "./schema.sql")
	if err != nil {
		t.Fatalf("ApplySchema: %v", err)
	}
	argv := runner.lastArgv()
	if argv[0] != "sqlcmd18" {
		t.Errorf("binary = %q", argv[0])
	}
	if !argvContains(argv, "-S", "shop-prod-sql.database.windows.net", "-d", "shopdb", "-i", "./schema.sql", "-b") {
		t.Errorf("argv = %v", argv)
	}
}

func TestDeleteGroupAsyncDoesNotWait(t *testing.T) {
	runner := &mockRunner{}
	runner.respond(0, "")
	plane := New(runner)

	if err := plane.DeleteGroupAsync(context.Background(), "shop-prod-rg"); err != nil {
		t.Fatalf("DeleteGroupAsync: %v", err)
	}
	if !argvContains(runner.lastArgv(), "group", "delete", "--name", "shop-prod-rg", "--yes", "--no-wait") {
		t.Errorf("argv = %v", runner.lastArgv())
	}
}

func TestDeployAppReturnsIngressURL(t *testing.T) {
	runner := &mockRunner{}
	runner.respond(0, `{"properties": {"configuration": {"ingress": {"fqdn": "shop-prod-app.nicehill-1234.westeurope.azurecontainerapps.io"}}}}`)
	plane := New(runner)

	url, err := plane.DeployApp(context.Background(), orchestrate.AppSpec{
		Group:       "shop-prod-rg",
		Environment: "shop-prod-env",
		Name:        "shop-prod-app",
		Image:       "shopprodacr.azurecr.io/shop-api:1.4.2",
		IdentityID:  "/identities/shop-prod-id",
		Registry:    "shopprodacr.azurecr.io",
		TargetPort:  8080,
	})
	if err != nil {
		t.Fatalf("DeployApp: %v", err)
	}
	if url != "https://shop-prod-app.nicehill-1234.westeurope.azurecontainerapps.io" {
		t.Errorf("url = %q", url)
	}
	if !argvContains(runner.lastArgv(), "--target-port", "8080", "--ingress", "external") {
		t.Errorf("argv = %v", runner.lastArgv())
	}
}

func TestDeployAppWithoutIngressFails(t *testing.T) {
	runner := &mockRunner{}
	runner.respond(0, `{"properties": {"configuration": {}}}`)
	plane := New(runner)

	if _, err := plane.DeployApp(context.Background(), orchestrate.AppSpec{Name: "a"}); err == nil {
		t.Fatal("expected an error when the CLI output has no ingress hostname")
	}
}

func TestDiscoverStack(t *testing.T) {
	runner := &mockRunner{}
	runner.respond(0, `[{"name": "shop-prod-rg"}]`)
	runner.respond(0, `[{"name": "shopprodacr", "id": "/registries/shopprodacr", "loginServer": "shopprodacr.azurecr.io"}]`)
	runner.respond(0, `[{"name": "shop-prod-app", "properties": {"configuration": {"ingress": {"fqdn": "shop.example.io"}}}}]`)
	plane := New(runner)

	refs, err := plane.DiscoverStack(context.Background(), "shop")
	if err != nil {
		t.Fatalf("DiscoverStack: %v", err)
	}
	if refs.Group != "shop-prod-rg" {
		t.Errorf("Group = %q", refs.Group)
	}
	if refs.Registry.LoginServer != "shopprodacr.azurecr.io" {
		t.Errorf("LoginServer = %q", refs.Registry.LoginServer)
	}
	if refs.App != "shop-prod-app" {
		t.Errorf("App = %q", refs.App)
	}
	if refs.AppURL != "https://shop.example.io" {
		t.Errorf("AppURL = %q", refs.AppURL)
	}
	if !argvContains(runner.argvs[0], "group", "list", "--tag", "project=shop") {
		t.Errorf("discovery argv = %v", runner.argvs[0])
	}
}

func TestDiscoverStackNoMatch(t *testing.T) {
	runner := &mockRunner{}
	runner.respond(0, `[]`)
	plane := New(runner)

	_, err := plane.DiscoverStack(context.Background(), "shop")
	if err == nil {
		t.Fatal("expected an error for zero tagged groups")
	}
	var ferr *failure.Error
	if !errors.As(err, &ferr) || ferr.Code != failure.CodeNotFound {
		t.Errorf("err = %v, want code NOT_FOUND", err)
	}
}

func TestDiscoverStackAmbiguous(t *testing.T) {
	runner := &mockRunner{}
	runner.respond(0, `[{"name": "shop-prod-rg"}, {"name": "shop-dev-rg"}]`)
	plane := New(runner)

	_, err := plane.DiscoverStack(context.Background(), "shop")
	if err == nil {
		t.Fatal("expected an error for more than one tagged group")
	}
	if !strings.Contains(err.Error(), "expected one") {
		t.Errorf("err = %v", err)
	}
}

func TestValidateConfigRejection(t *testing.T) {
	runner := &mockRunner{}
	runner.respond(2, "stackpilot.yaml: line 7: unknown key 'imgae'")
	plane := New(runner, WithValidatorBin("config-lint-2"))

	err := plane.ValidateConfig(context.Background(), "stackpilot.yaml")
	if err == nil {
		t.Fatal("expected a validation error")
	}
	var ferr *failure.Error
	if !errors.As(err, &ferr) || ferr.Code != failure.CodeValidation {
		t.Errorf("err = %v, want code VALIDATION", err)
	}
	argv := runner.lastArgv()
	if argv[0] != "config-lint-2" || argv[1] != "stackpilot.yaml" {
		t.Errorf("argv = %v", argv)
	}
}
