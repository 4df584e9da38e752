package prime

import (
	"context"
	"errors"
	"testing"

	"privacy-relay-settlement/internal/models"
	"privacy-relay-settlement/internal/store"
)

type fakeAPI struct {
	portfolioCalls int
	walletCalls    int
	addressCalls   int
	walletErr      error
	lastNetwork    string
	lastWalletType string
}

func (f *fakeAPI) FindPortfolio(_ context.Context, name string) (string, error) {
	f.portfolioCalls++
	if name != "Treasury" {
		return "", store.ErrNotFound
	}
	return "portfolio-1", nil
}

func (f *fakeAPI) FindWallet(_ context.Context, portfolioId, walletType, symbol string) (string, error) {
	f.walletCalls++
	f.lastWalletType = walletType
	if f.walletErr != nil {
		return "", f.walletErr
	}
	return portfolioId + "-" + symbol, nil
}

func (f *fakeAPI) CreateAddress(_ context.Context, _, walletId, network string) (string, error) {
	f.addressCalls++
	f.lastNetwork = network
	return "addr-" + walletId, nil
}

func TestDestination_ResolvesAndCaches(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{}
	svc := newService(api, models.PrimeConfig{
		PortfolioName: "Treasury",
		Networks:      map[string]string{"usdc": "solana-mainnet", "SOL": "solana-mainnet"},
	})

	addr, err := svc.Destination(ctx, "usdc")
	if err != nil {
		t.Fatalf("Destination failed: %v", err)
	}
	if addr != "addr-portfolio-1-USDC" {
		t.Errorf("Unexpected address %q", addr)
	}
	if api.lastNetwork != "solana-mainnet" || api.lastWalletType != defaultWalletType {
		t.Errorf("Unexpected network %q or wallet type %q", api.lastNetwork, api.lastWalletType)
	}

	if again, _ := svc.Destination(ctx, "USDC"); again != addr {
		t.Errorf("Expected cached address, got %q", again)
	}
	if api.addressCalls != 1 {
		t.Errorf("Expected one address creation, got %d", api.addressCalls)
	}

	if _, err := svc.Destination(ctx, "SOL"); err != nil {
		t.Fatalf("Destination failed: %v", err)
	}
	if api.portfolioCalls != 1 {
		t.Errorf("Portfolio should be looked up once, got %d", api.portfolioCalls)
	}
}

func TestDestination_Errors(t *testing.T) {
	ctx := context.Background()

	svc := newService(&fakeAPI{}, models.PrimeConfig{PortfolioName: "Treasury"})
	if _, err := svc.Destination(ctx, "USDC"); !errors.Is(err, store.ErrValidation) {
		t.Errorf("Expected validation error for an unmapped currency, got %v", err)
	}

	svc = newService(&fakeAPI{}, models.PrimeConfig{Networks: map[string]string{"USDC": "solana-mainnet"}})
	if _, err := svc.Destination(ctx, "USDC"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected the default portfolio lookup to fail, got %v", err)
	}

	api := &fakeAPI{walletErr: store.ErrServiceUnavailable}
	svc = newService(api, models.PrimeConfig{PortfolioName: "Treasury", Networks: map[string]string{"USDC": "solana-mainnet"}})
	if _, err := svc.Destination(ctx, "USDC"); !errors.Is(err, store.ErrServiceUnavailable) {
		t.Errorf("Expected wallet error, got %v", err)
	}
	api.walletErr = nil
	if _, err := svc.Destination(ctx, "USDC"); err != nil {
		t.Errorf("Failures must not be cached, got %v", err)
	}
}

func TestNewService_RequiresCredentials(t *testing.T) {
	if _, err := NewService(models.PrimeConfig{AccessKey: "a"}); err == nil {
		t.Error("Expected missing credential error")
	}
}
