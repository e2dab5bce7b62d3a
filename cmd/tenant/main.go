// Package main provides CLI for tenant management.
// Usage: tenant create --slug acme --name "ACME Ltd"
//
//	tenant list
//	tenant token --tenant <tenant-id> --user <user-id> --roles owner
//	tenant migrate up
//	tenant suspend <tenant-id>
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"kabala/internal/config"
	"kabala/internal/core/tenant"
	"kabala/internal/domain/auth"
	"kabala/internal/infrastructure/migration"
	"kabala/internal/infrastructure/storage/postgres"
	"kabala/pkg/logger"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx := logger.WithLogger(context.Background(), logger.Nop())

	switch os.Args[1] {
	case "create":
		createTenant(ctx)
	case "list":
		listTenants(ctx)
	case "migrate":
		migrate(ctx)
	case "suspend":
		setStatus(ctx, tenant.StatusSuspended)
	case "activate":
		setStatus(ctx, tenant.StatusActive)
	case "token":
		mintToken(ctx)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`kabala Tenant Management CLI

Usage:
  tenant <command> [options]

Commands:
  create    Create a new tenant
  list      List all tenants
  migrate   Apply (up), roll back (down) or show (version) schema migrations
  suspend   Suspend a tenant
  activate  Activate a suspended tenant
  token     Mint an access token for a tenant user (development)
  help      Show this help

Environment Variables:
  DATABASE_URL   Connection string (required)
  JWT_SECRET     Signing secret for token

Examples:
  tenant create --slug acme --name "ACME Ltd" --business-number 514000000
  tenant list
  tenant migrate up
  tenant token --tenant <tenant-uuid> --user u-1 --roles owner,accountant --ttl 1h
  tenant suspend <tenant-uuid>
  tenant activate <tenant-uuid>`)
}

// flags parses "--name value" pairs after the command.
func flags() map[string]string {
	out := make(map[string]string)
	for i := 2; i < len(os.Args); i++ {
		arg := os.Args[i]
		if !strings.HasPrefix(arg, "--") {
			continue
		}
		if i+1 < len(os.Args) && !strings.HasPrefix(os.Args[i+1], "--") {
			out[strings.TrimPrefix(arg, "--")] = os.Args[i+1]
			i++
		} else {
			out[strings.TrimPrefix(arg, "--")] = ""
		}
	}
	return out
}

func fail(format string, args ...any) {
	fmt.Printf("Error: "+format+"\n", args...)
	os.Exit(1)
}

func loadConfig() *config.Configuration {
	cfg, err := config.Load()
	if err != nil {
		fail("%v", err)
	}
	return cfg
}

func getPool(ctx context.Context, cfg *config.Configuration) *pgxpool.Pool {
	pool, err := postgres.NewPool(ctx, postgres.PoolConfigFrom(cfg.Database, "kabala-tenant-cli"))
	if err != nil {
		fail("connecting to database: %v", err)
	}
	return pool
}

func createTenant(ctx context.Context) {
	f := flags()
	in := tenant.CreateTenantInput{
		Slug:           f["slug"],
		DisplayName:    f["name"],
		BusinessNumber: f["business-number"],
	}
	if err := in.Validate(); err != nil {
		fmt.Println("Usage: tenant create --slug <slug> --name <name> [--business-number <number>]")
		fail("%v", err)
	}

	pool := getPool(ctx, loadConfig())
	defer pool.Close()

	t := &tenant.Tenant{
		Slug:           in.Slug,
		DisplayName:    in.DisplayName,
		BusinessNumber: in.BusinessNumber,
		Status:         tenant.StatusActive,
	}
	if err := tenant.NewPostgresRegistry(pool).Create(ctx, t); err != nil {
		fail("registering tenant: %v", err)
	}

	fmt.Printf("✓ Tenant '%s' created\n", t.Slug)
	fmt.Printf("  Tenant ID: %s\n", t.ID)
	fmt.Printf("  Status: %s\n", t.Status)
	fmt.Println("  Next: initialize a starting number for each document type before issuing documents.")
}

func listTenants(ctx context.Context) {
	pool := getPool(ctx, loadConfig())
	defer pool.Close()

	tenants, err := tenant.NewPostgresRegistry(pool).ListAll(ctx)
	if err != nil {
		fail("listing tenants: %v", err)
	}

	if len(tenants) == 0 {
		fmt.Println("No tenants found")
		return
	}

	fmt.Printf("%-36s %-20s %-30s %-12s %-10s\n", "TENANT_ID", "SLUG", "NAME", "BUSINESS_NO", "STATUS")
	fmt.Println(strings.Repeat("-", 112))

	for _, t := range tenants {
		fmt.Printf("%-36s %-20s %-30s %-12s %-10s\n",
			truncate(t.ID, 36),
			truncate(t.Slug, 20),
			truncate(t.DisplayName, 30),
			truncate(t.BusinessNumber, 12),
			t.Status,
		)
	}
}

func migrate(ctx context.Context) {
	if len(os.Args) < 3 {
		fail("usage: tenant migrate up|down|version")
	}

	pool := getPool(ctx, loadConfig())
	defer pool.Close()

	m, err := migration.New(pool)
	if err != nil {
		fail("%v", err)
	}
	defer func() { _ = m.Close() }()

	switch os.Args[2] {
	case "up":
		err = m.Up(ctx)
	case "down":
		if _, ok := flags()["yes"]; !ok {
			fail("down drops every table; pass --yes to confirm")
		}
		err = m.Down(ctx)
	case "version":
		var (
			version uint
			dirty   bool
		)
		version, dirty, err = m.Version()
		if err == nil {
			fmt.Printf("schema version %d (dirty: %t)\n", version, dirty)
		}
	default:
		fail("unknown migrate command %q", os.Args[2])
	}
	if err != nil {
		fail("%v", err)
	}
	fmt.Println("✓ Done")
}

func setStatus(ctx context.Context, status tenant.Status) {
	if len(os.Args) < 3 {
		fail("usage: tenant %s <tenant-uuid>", os.Args[1])
	}
	tenantID := os.Args[2]

	pool := getPool(ctx, loadConfig())
	defer pool.Close()

	if err := tenant.NewPostgresRegistry(pool).UpdateStatusByID(ctx, tenantID, status); err != nil {
		fail("%v", err)
	}

	fmt.Printf("✓ Tenant '%s' is now %s\n", tenantID, status)
}

func mintToken(ctx context.Context) {
	f := flags()
	tenantID, userID := f["tenant"], f["user"]
	if tenantID == "" || userID == "" {
		fail("usage: tenant token --tenant <tenant-uuid> --user <user-id> [--email e] [--roles owner,clerk] [--ttl 1h]")
	}

	cfg := loadConfig()
	if cfg.App.Env == "production" {
		fail("token minting is disabled in production")
	}

	pool := getPool(ctx, cfg)
	defer pool.Close()

	t, err := tenant.NewPostgresRegistry(pool).GetByID(ctx, tenantID)
	if err != nil {
		fail("%v", err)
	}
	if !t.IsActive() {
		fail("tenant '%s' is %s", t.Slug, t.Status)
	}

	jwtConfig := auth.DefaultJWTConfig(cfg.JWT.Secret)
	jwtConfig.Issuer = cfg.JWT.Issuer
	if raw := f["ttl"]; raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			fail("invalid --ttl: %v", err)
		}
		jwtConfig.AccessTokenTTL = ttl
	}

	var roles []string
	if raw := f["roles"]; raw != "" {
		for _, r := range strings.Split(raw, ",") {
			if r = strings.TrimSpace(r); r != "" {
				roles = append(roles, r)
			}
		}
	} else {
		roles = []string{auth.RoleClerk}
	}

	token, expiresAt, err := auth.NewJWTService(jwtConfig).GenerateAccessToken(userID, t.ID, f["email"], roles)
	if err != nil {
		fail("%v", err)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s, roles %s\n", expiresAt.Format(time.RFC3339), strings.Join(roles, ","))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
