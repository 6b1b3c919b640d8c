// Package safecontracts applies curated names and delegate-call trust to
// the canonical Safe deployment addresses.
package safecontracts

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/safeutils/safe-decoder-service/internal/domain"
	"github.com/safeutils/safe-decoder-service/shared/logging"
)

// deployment is one canonical Safe contract deployment address.
type deployment struct {
	version string
	name    string
	address string
}

// defaultDeployments lists the canonical singleton addresses of the Safe
// contract suite per released version.
var defaultDeployments = []deployment{
	{"1.3.0", "GnosisSafe", "0xd9Db270c1B5E3Bd161E8c8503c55cEABeE709552"},
	{"1.3.0", "GnosisSafeL2", "0x3E5c63644E683549055b9Be8653de26E0B4CD36E"},
	{"1.3.0", "GnosisSafeProxyFactory", "0xa6B71E26C5e0845f74c812102Ca7114b6a896AB2"},
	{"1.3.0", "MultiSend", "0xA238CBeb142c10Ef7Ad8442C6D1f9E89e07e7761"},
	{"1.3.0", "MultiSendCallOnly", "0x40A2aCCbd92BCA938b02010E17A5b8929b49130D"},
	{"1.3.0", "CompatibilityFallbackHandler", "0xf48f2B2d2a534e402487b3ee7C18c33Aec0Fe5e4"},
	{"1.3.0", "SignMessageLib", "0xA65387F16B013cf2Af4605Ad8aA5ec25a2cbA3a2"},
	{"1.3.0", "CreateCall", "0x7cbB62EaA69F79e6873cD1ecB2392971036cFAa4"},
	{"1.3.0", "SimulateTxAccessor", "0x59AD6735bCd8152B84860Cb256dD9e96b85F69Da"},
	{"1.4.1", "Safe", "0x41675C099F32341bf84BFc5382aF534df5C7461a"},
	{"1.4.1", "SafeL2", "0x29fcB43b46531BcA003ddC8FCB67FFE91900C762"},
	{"1.4.1", "SafeProxyFactory", "0x4e1DCf7AD4e460CfD30791CCC4F9c8a4f820ec67"},
	{"1.4.1", "MultiSend", "0x38869bf66a61cF6bDB996A6aE40D5853Fd43B526"},
	{"1.4.1", "MultiSendCallOnly", "0x9641d764fc13c8B624c04430C7356C1C7C8102e2"},
	{"1.4.1", "CompatibilityFallbackHandler", "0xfd0732Dc9E303f09fCEf3a7388Ad10A83459Ec99"},
	{"1.4.1", "SignMessageLib", "0xd53cd0aB83D845Ac265BE939c57F53AD838012c9"},
	{"1.4.1", "CreateCall", "0x9b35Af71d77eaf8d7e40252370304687390A1A52"},
	{"1.4.1", "SimulateTxAccessor", "0x3d4BA2E0884aa488718476ca2FB8Efc291A46199"},
	{"1.4.1", "SafeMigration", "0x526643F69b81B008F46d95CD5ced5eC0edFFDaC6"},
	{"1.4.1", "SafeToL2Migration", "0xfF83F6335d8930cBad1c0D439A841f01888D9f69"},
	{"1.4.1", "SafeToL2Setup", "0xBD89A1CE4DDe368FFAB0eC35506eEcE0b1fFdc54"},
}

// displayName builds the curated display name for a Safe contract: the
// Gnosis prefix is dropped, a "Safe: " prefix is added when the name does
// not already mention Safe, and the version is appended.
func displayName(contractName, version string) string {
	name := strings.ReplaceAll(contractName, "Gnosis", "")
	if !strings.Contains(strings.ToLower(name), "safe") {
		return fmt.Sprintf("Safe: %s %s", name, version)
	}
	return fmt.Sprintf("%s %s", name, version)
}

// Service updates contract rows for the canonical Safe deployments.
type Service struct {
	contracts domain.ContractRepository
	trusted   map[string]bool
	logger    *logging.Logger
}

// NewService creates the updater. trustedForDelegateCall lists contract
// names allowed as delegate-call targets.
func NewService(contracts domain.ContractRepository, trustedForDelegateCall []string, logger *logging.Logger) *Service {
	trusted := make(map[string]bool, len(trustedForDelegateCall))
	for _, name := range trustedForDelegateCall {
		trusted[name] = true
	}
	return &Service{contracts: contracts, trusted: trusted, logger: logger}
}

// Update applies name, display name and delegate-call trust to every
// stored contract row matching a canonical deployment address, across all
// chains. Returns the number of rows touched.
func (s *Service) Update(ctx context.Context) (int64, error) {
	var total int64
	for _, d := range defaultDeployments {
		address := common.HexToAddress(d.address)
		affected, err := s.contracts.UpdateInfo(ctx, address.Bytes(), domain.ContractInfo{
			Name:                   d.name,
			DisplayName:            displayName(d.name, d.version),
			TrustedForDelegateCall: s.trusted[d.name],
		})
		if err != nil {
			return total, fmt.Errorf("update safe contract %s: %w", d.address, err)
		}
		if affected > 0 {
			s.logger.WithFields(map[string]any{
				"address": address.Hex(),
				"chains":  affected,
			}).Info("Updated well known Safe contract")
			total += affected
		}
	}
	return total, nil
}
