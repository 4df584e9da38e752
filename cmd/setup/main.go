/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"privacy-relay-settlement/internal/common"
	"privacy-relay-settlement/internal/config"
	"privacy-relay-settlement/internal/models"
	"privacy-relay-settlement/internal/security"

	"go.uber.org/zap"
)

// readSecret reads a raw key from the named environment variable so it never
// appears in shell history or process listings.
func readSecret(envName string) ([]byte, error) {
	raw := os.Getenv(envName)
	if raw == "" {
		return nil, fmt.Errorf("environment variable %s is empty", envName)
	}
	return []byte(raw), nil
}

func runInit(ctx context.Context, cfg *models.Config) {
	zap.L().Info("Initializing database", zap.String("path", cfg.Database.Path))

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	dbService.Close()

	zap.L().Info("Initialization complete")
}

func runGenerateKey() {
	key, err := security.GenerateMasterKey()
	if err != nil {
		zap.L().Fatal("Failed to generate master key", zap.Error(err))
	}

	common.PrintHeader("NEW MASTER KEY", common.DefaultWidth)
	fmt.Println(key)
	common.PrintFooter("Store this as KEY_ENCRYPTION_MASTER_KEY. It cannot be recovered.", common.DefaultWidth)
}

func runEncrypt(cfg *models.Config, envName string) {
	cipher, err := security.NewCipher(cfg.Security.MasterKey)
	if err != nil {
		zap.L().Fatal("Failed to initialize key cipher", zap.Error(err))
	}
	raw, err := readSecret(envName)
	if err != nil {
		zap.L().Fatal("Unable to read key", zap.Error(err))
	}

	encrypted, err := cipher.Encrypt(raw)
	clear(raw)
	if err != nil {
		zap.L().Fatal("Failed to encrypt key", zap.Error(err))
	}
	fmt.Println(encrypted)
}

func runTreasury(ctx context.Context, cfg *models.Config, scope, envName, label string) {
	cipher, err := security.NewCipher(cfg.Security.MasterKey)
	if err != nil {
		zap.L().Fatal("Failed to initialize key cipher", zap.Error(err))
	}
	raw, err := readSecret(envName)
	if err != nil {
		zap.L().Fatal("Unable to read treasury key", zap.Error(err))
	}

	encrypted, err := cipher.Encrypt(raw)
	clear(raw)
	if err != nil {
		zap.L().Fatal("Failed to encrypt treasury key", zap.Error(err))
	}

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	var metadata map[string]string
	if label != "" {
		metadata = map[string]string{"label": label}
	}
	treasury, err := dbService.UpsertTreasury(ctx, scope, encrypted, metadata)
	if err != nil {
		zap.L().Fatal("Failed to store treasury config", zap.Error(err))
	}

	scopeName := treasury.ScopeId
	if scopeName == "" {
		scopeName = "(global default)"
	}
	common.PrintHeader("TREASURY CONFIGURED", common.DefaultWidth)
	fmt.Printf("Id:      %s\n", treasury.Id)
	fmt.Printf("Scope:   %s\n", scopeName)
	fmt.Printf("Updated: %s\n", treasury.UpdatedAt.Format("2006-01-02 15:04:05"))
	common.PrintSeparator("=", common.DefaultWidth)
}

func main() {
	ctx := context.Background()

	initFlag := flag.Bool("init", false, "Create the database schema")
	generateKeyFlag := flag.Bool("generate-master-key", false, "Print a new random master key")
	encryptFlag := flag.String("encrypt-key-env", "", "Print the encrypted form of the key held in this environment variable")
	treasuryFlag := flag.String("treasury-key-env", "", "Store the treasury key held in this environment variable")
	scopeFlag := flag.String("scope", "", "Treasury scope; empty is the global default")
	labelFlag := flag.String("label", "", "Optional treasury label")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		common.BootstrapLogger()
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger(cfg.Logging)
	defer loggerCleanup()

	switch {
	case *generateKeyFlag:
		runGenerateKey()
	case *encryptFlag != "":
		runEncrypt(cfg, *encryptFlag)
	case *treasuryFlag != "":
		runTreasury(ctx, cfg, *scopeFlag, *treasuryFlag, *labelFlag)
	case *initFlag:
		runInit(ctx, cfg)
	default:
		flag.Usage()
		os.Exit(2)
	}
}
