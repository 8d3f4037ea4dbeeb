package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "foodie-dev",
		"API_AUTH_JWT_SECRET":      "test-secret",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Auth.TokenTTL != 7*24*time.Hour {
		t.Errorf("unexpected default token ttl: %s", cfg.Auth.TokenTTL)
	}
	if cfg.Auth.SuperAdminEmail != "admin@foodie.com" {
		t.Errorf("unexpected default super admin email: %s", cfg.Auth.SuperAdminEmail)
	}
	if cfg.Payments.Currency != "inr" {
		t.Errorf("unexpected default currency: %s", cfg.Payments.Currency)
	}
	if cfg.Payments.DeliveryFee != 5000 {
		t.Errorf("unexpected default delivery fee: %d", cfg.Payments.DeliveryFee)
	}
	if cfg.Payments.MinimumCharge != 100 {
		t.Errorf("unexpected default minimum charge: %d", cfg.Payments.MinimumCharge)
	}
	if cfg.Events.ProjectID != "foodie-dev" {
		t.Errorf("expected events project to default to firestore project, got %s", cfg.Events.ProjectID)
	}
	if cfg.RateLimits.DefaultPerMinute != 120 {
		t.Errorf("unexpected default rate limit: %d", cfg.RateLimits.DefaultPerMinute)
	}
	if cfg.Security.Environment != "local" {
		t.Errorf("expected default security environment local, got %s", cfg.Security.Environment)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected default idempotency ttl: %s", cfg.Idempotency.TTL)
	}
	if cfg.Storage.AssetsBucket != "" {
		t.Errorf("expected empty default assets bucket, got %s", cfg.Storage.AssetsBucket)
	}
	if cfg.Storage.UploadTTL != defaultStorageUploadTTL {
		t.Errorf("unexpected default upload ttl: %s", cfg.Storage.UploadTTL)
	}
	if cfg.Storage.MaxUploadSize != defaultStorageMaxUpload {
		t.Errorf("unexpected default max upload size: %d", cfg.Storage.MaxUploadSize)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                  "9090",
		"API_SERVER_READ_TIMEOUT":          "20s",
		"API_SERVER_WRITE_TIMEOUT":         "25s",
		"API_SERVER_IDLE_TIMEOUT":          "2m",
		"API_FIRESTORE_PROJECT_ID":         "foodie-prod",
		"API_AUTH_JWT_SECRET":              "secret://auth/jwt",
		"API_AUTH_TOKEN_TTL":               "24h",
		"API_AUTH_SUPER_ADMIN_EMAIL":       "Root@Foodie.com",
		"API_PAYMENTS_STRIPE_API_KEY":      "secret://stripe/api",
		"API_PAYMENTS_CALLBACK_SECRET":     "secret://stripe/callback",
		"API_PAYMENTS_CURRENCY":            "USD",
		"API_PAYMENTS_DELIVERY_FEE":        "299",
		"API_PAYMENTS_MINIMUM_CHARGE":      "50",
		"API_EVENTS_PROJECT_ID":            "foodie-events",
		"API_EVENTS_TOPIC_ID":              "order-events",
		"API_RATELIMIT_DEFAULT_PER_MIN":    "150",
		"API_RATELIMIT_AUTH_PER_MIN":       "10",
		"API_SECURITY_ENVIRONMENT":         "prod",
		"API_IDEMPOTENCY_HEADER":           "X-Idem-Key",
		"API_IDEMPOTENCY_TTL":              "48h",
		"API_IDEMPOTENCY_CLEANUP_INTERVAL": "30m",
		"API_IDEMPOTENCY_CLEANUP_BATCH":    "500",
		"API_STORAGE_ASSETS_BUCKET":        "foodie-assets",
		"API_STORAGE_SIGNER_KEY":           "secret://storage/signer",
		"API_STORAGE_UPLOAD_TTL":           "10m",
		"API_STORAGE_MAX_UPLOAD_SIZE":      "1048576",
	}

	secrets := map[string]string{
		"secret://auth/jwt":        "jwt-signing-key",
		"secret://stripe/api":      "sk_test_abc",
		"secret://stripe/callback": "callback-secret",
		"secret://storage/signer":  `{"client_email":"svc@x.iam.gserviceaccount.com"}`,
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.Auth.JWTSecret != "jwt-signing-key" {
		t.Errorf("expected resolved jwt secret, got %s", cfg.Auth.JWTSecret)
	}
	if cfg.Auth.TokenTTL != 24*time.Hour {
		t.Errorf("unexpected token ttl: %s", cfg.Auth.TokenTTL)
	}
	if cfg.Auth.SuperAdminEmail != "root@foodie.com" {
		t.Errorf("expected lowercased super admin email, got %s", cfg.Auth.SuperAdminEmail)
	}
	if cfg.Payments.StripeAPIKey != "sk_test_abc" {
		t.Errorf("expected resolved stripe api key, got %s", cfg.Payments.StripeAPIKey)
	}
	if cfg.Payments.CallbackSecret != "callback-secret" {
		t.Errorf("expected resolved callback secret, got %s", cfg.Payments.CallbackSecret)
	}
	if cfg.Payments.Currency != "usd" {
		t.Errorf("expected lowercased currency, got %s", cfg.Payments.Currency)
	}
	if cfg.Payments.DeliveryFee != 299 || cfg.Payments.MinimumCharge != 50 {
		t.Errorf("unexpected payment amounts %d/%d", cfg.Payments.DeliveryFee, cfg.Payments.MinimumCharge)
	}
	if cfg.Events.ProjectID != "foodie-events" || cfg.Events.TopicID != "order-events" {
		t.Errorf("unexpected events config %+v", cfg.Events)
	}
	if cfg.RateLimits.AuthPerMinute != 10 {
		t.Errorf("unexpected auth rate limit: %d", cfg.RateLimits.AuthPerMinute)
	}
	if cfg.Security.Environment != "prod" {
		t.Errorf("expected security environment prod, got %s", cfg.Security.Environment)
	}
	if cfg.Idempotency.Header != "X-Idem-Key" {
		t.Errorf("unexpected idempotency header %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.CleanupBatchSize != 500 {
		t.Errorf("unexpected cleanup batch size %d", cfg.Idempotency.CleanupBatchSize)
	}
	if cfg.Storage.AssetsBucket != "foodie-assets" {
		t.Errorf("unexpected assets bucket %s", cfg.Storage.AssetsBucket)
	}
	if !strings.Contains(cfg.Storage.SignerKey, "client_email") {
		t.Errorf("expected resolved signer key, got %s", cfg.Storage.SignerKey)
	}
	if cfg.Storage.UploadTTL != 10*time.Minute || cfg.Storage.MaxUploadSize != 1<<20 {
		t.Errorf("unexpected storage limits %+v", cfg.Storage)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_SERVER_PORT=7070\nAPI_FIRESTORE_PROJECT_ID=foodie-dot\nAPI_AUTH_JWT_SECRET=dot-secret\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firestore.ProjectID != "foodie-dot" {
		t.Errorf("expected firestore project from dotenv, got %s", cfg.Firestore.ProjectID)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	if _, ok := err.(*ValidationError); !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID":    "foodie-dev",
		"API_AUTH_JWT_SECRET":         "test-secret",
		"API_PAYMENTS_STRIPE_API_KEY": "secret://missing",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected secret resolution error, got nil")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_FIRESTORE_PROJECT_ID=dot-project\nAPI_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("API_FIRESTORE_PROJECT_ID", "os-project")
	t.Setenv("API_SECRET_PROJECT_IDS", "prod=project-prod")

	overrides := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "override-project",
		"API_SECRET_VERSION_PINS":  "secret://stripe/api=5",
	}

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(overrides))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["API_FIRESTORE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["API_SECRET_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["API_SECRET_PROJECT_IDS"]; got != "prod=project-prod" {
		t.Fatalf("expected system env project map, got %s", got)
	}
	if got := values["API_SECRET_VERSION_PINS"]; got != "secret://stripe/api=5" {
		t.Fatalf("expected override version pin, got %s", got)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "foodie-dev",
		"API_AUTH_JWT_SECRET":      "test-secret",
	}

	_, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Payments.CallbackSecret"),
	)
	if err == nil {
		t.Fatal("expected missing secrets error, got nil")
	}
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	expectedRedacted := redactSecretName("Payments.CallbackSecret")
	if got := missing.RedactedNames(); len(got) != 1 || got[0] != expectedRedacted {
		t.Fatalf("unexpected redacted names %v", got)
	}
}

func TestLoadMissingRequiredSecretsPanic(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "foodie-dev",
		"API_AUTH_JWT_SECRET":      "test-secret",
	}

	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("expected panic when required secrets missing")
		}
		missing, ok := rec.(*MissingSecretsError)
		if !ok {
			t.Fatalf("expected MissingSecretsError panic, got %T", rec)
		}
		if len(missing.Names()) != 1 || missing.Names()[0] != "Payments.CallbackSecret" {
			t.Fatalf("unexpected missing secrets %v", missing.Names())
		}
	}()

	Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Payments.CallbackSecret"),
		WithPanicOnMissingSecrets(),
	)
}

func TestLoadSupportsLegacySecretScheme(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID":     "foodie-dev",
		"API_AUTH_JWT_SECRET":          "test-secret",
		"API_PAYMENTS_CALLBACK_SECRET": "sm://stripe/callback",
	}

	secrets := map[string]string{
		"secret://stripe/callback": "legacy-secret",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errors.New("not found")}
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Payments.CallbackSecret != "legacy-secret" {
		t.Fatalf("expected legacy secret, got %s", cfg.Payments.CallbackSecret)
	}
}
