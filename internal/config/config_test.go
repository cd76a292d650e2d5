package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidateRejectsBadMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "replay"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown mode")
	}
	if !strings.Contains(err.Error(), "unknown mode") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateOperatorKeyRequiredWithRPC(t *testing.T) {
	cfg := Defaults()
	cfg.Chain.RPCURL = "https://polygon-rpc.example"
	cfg.Chain.VaultAddress = "0x0000000000000000000000000000000000000001"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "private_key or encrypted_key_path") {
		t.Fatalf("expected operator key error, got %v", err)
	}

	cfg.Operator.PrivateKey = "deadbeef"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("key set, should validate: %v", err)
	}
}

func TestValidateCollectsMultipleErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Redis.Addr = ""
	cfg.S3.Bucket = ""
	cfg.Engine.FeeRecipient = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"redis: addr", "s3: bucket", "engine: fee_recipient"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}

func TestValidateRateWindowRequiredWithRateLimit(t *testing.T) {
	cfg := Defaults()
	cfg.Server.RateLimit = 100
	cfg.Server.RateWindow = duration{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for rate_limit without rate_window")
	}
}

func TestValidateTelegramPair(t *testing.T) {
	cfg := Defaults()
	cfg.Notify.TelegramToken = "token"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for telegram token without chat id")
	}
	cfg.Notify.TelegramChatID = "12345"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token and chat id set, should validate: %v", err)
	}
}

func TestDurationUnmarshalText(t *testing.T) {
	var d duration
	if err := d.UnmarshalText([]byte("90s")); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.Duration != 90*time.Second {
		t.Fatalf("got %v, want 90s", d.Duration)
	}
	if err := d.UnmarshalText([]byte("not-a-duration")); err == nil {
		t.Fatal("expected parse error")
	}
}
