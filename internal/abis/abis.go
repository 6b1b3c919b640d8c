// Package abis seeds the database with the bundled ABI fixtures so the
// decoder can handle the Safe contract suite and common tokens before any
// metadata has been downloaded.
package abis

import (
	"context"
	"embed"
	"fmt"

	"github.com/safeutils/safe-decoder-service/internal/domain"
	"github.com/safeutils/safe-decoder-service/shared/logging"
)

//go:embed fixtures/*.json
var fixtures embed.FS

// Bundled ABIs are attributed to the local fixture source.
const (
	sourceName = "localstorage"
	sourceURL  = "decoder-service"
)

// tiers assigns a decoding relevance to each fixture: the Safe core
// contracts beat the Safe libraries and token standards, which beat third
// party protocols, when selectors collide.
var tiers = []struct {
	relevance int
	files     []string
}{
	{100, []string{
		"fixtures/safe_v1_3_0.json",
		"fixtures/safe_v1_4_1.json",
	}},
	{90, []string{
		"fixtures/erc20.json",
		"fixtures/erc721.json",
		"fixtures/multi_send.json",
		"fixtures/sign_message_lib.json",
		"fixtures/compatibility_fallback_handler.json",
		"fixtures/safe_to_l2_migration.json",
	}},
	{50, []string{
		"fixtures/cowswap_settlement.json",
		"fixtures/snapshot_delegate_registry.json",
	}},
}

// Seed stores every bundled ABI, deduplicated by content hash. Safe to run
// on every startup.
func Seed(ctx context.Context, abis domain.AbiRepository, sources domain.AbiSourceRepository, logger *logging.Logger) error {
	source, err := sources.GetOrCreate(ctx, sourceName, sourceURL)
	if err != nil {
		return fmt.Errorf("seed abi source: %w", err)
	}

	seeded := 0
	for _, tier := range tiers {
		for _, file := range tier.files {
			doc, err := fixtures.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read fixture %s: %w", file, err)
			}
			if _, err := abis.GetOrCreate(ctx, doc, tier.relevance, source.ID); err != nil {
				return fmt.Errorf("seed fixture %s: %w", file, err)
			}
			seeded++
		}
	}
	logger.WithField("abis", seeded).Info("Bundled ABIs seeded")
	return nil
}
