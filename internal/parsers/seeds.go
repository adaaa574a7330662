package parsers

import (
	"context"
	"io"
	"os"
	"strings"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/internal/store"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"

	"gopkg.in/yaml.v3"
)

// Seeds is the YAML document used to bootstrap catalogs, matching aliases
// and classification rules:
//
//	currencies:
//	  - {id: 1, code: COP}
//	accounts:
//	  - {id: 1, name: Corriente, type: corriente, currency_id: 1}
//	aliases:
//	  - {account_id: 1, patron: RETIRO, reemplazo: TRASLADO HACIA CUENTA}
//	rules:
//	  - {patron: GMF, kind: contains, third_party_id: 9, concept_id: 4}
//
// Environment variables in the file are expanded before decoding.
type Seeds struct {
	Currencies   []models.Currency           `yaml:"currencies"`
	Accounts     []models.Account            `yaml:"accounts"`
	ThirdParties []models.ThirdParty         `yaml:"third_parties"`
	References   []models.ReferenceEntry     `yaml:"references"`
	Aliases      []models.MatchingAlias      `yaml:"aliases"`
	Rules        []models.ClassificationRule `yaml:"rules"`
}

// SeedTarget is the slice of the repository a seed file writes to
type SeedTarget interface {
	store.CurrencyCatalog
	store.AccountCatalog
	store.ThirdPartyCatalog
	store.ReferenceCatalog
	store.AliasStore
	store.RuleStore
}

// SeedResult counts the records written per section
type SeedResult struct {
	Currencies   int `json:"currencies"`
	Accounts     int `json:"accounts"`
	ThirdParties int `json:"third_parties"`
	References   int `json:"references"`
	Aliases      int `json:"aliases"`
	Rules        int `json:"rules"`
}

// LoadSeeds reads a seed file from disk
func LoadSeeds(path string) (*Seeds, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		return nil, errors.FileError(errors.CodeInvalidFormat, path, err)
	}
	seeds, err := decodeSeeds(data)
	if err != nil {
		return nil, errors.FileError(errors.CodeInvalidFormat, path, err).
			WithSuggestion("check the YAML syntax of the seed file")
	}
	return seeds, nil
}

// DecodeSeeds reads a seed document from r
func DecodeSeeds(r io.Reader) (*Seeds, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.FileError(errors.CodeInvalidFormat, "<reader>", err)
	}
	seeds, err := decodeSeeds(data)
	if err != nil {
		return nil, errors.FileError(errors.CodeInvalidFormat, "<reader>", err)
	}
	return seeds, nil
}

func decodeSeeds(data []byte) (*Seeds, error) {
	var seeds Seeds
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &seeds); err != nil {
		return nil, err
	}
	return &seeds, nil
}

// Validate checks every entry before anything is written
func (s *Seeds) Validate() error {
	for i, c := range s.Currencies {
		if c.ID <= 0 || strings.TrimSpace(c.Code) == "" {
			return errors.ValidationError(errors.CodeMissingField, "currencies", i, nil).
				WithSuggestion("every currency needs an id and a code")
		}
	}
	for i, a := range s.Accounts {
		if a.ID <= 0 || a.CurrencyID <= 0 {
			return errors.ValidationError(errors.CodeMissingField, "accounts", i, nil).
				WithSuggestion("every account needs an id and a currency_id")
		}
	}
	for i, tp := range s.ThirdParties {
		if tp.ID <= 0 || strings.TrimSpace(tp.Name) == "" {
			return errors.ValidationError(errors.CodeMissingField, "third_parties", i, nil)
		}
	}
	for i, ref := range s.References {
		if strings.TrimSpace(ref.Reference) == "" || ref.ThirdPartyID <= 0 {
			return errors.ValidationError(errors.CodeMissingField, "references", i, nil)
		}
	}
	for i, a := range s.Aliases {
		if a.AccountID <= 0 || strings.TrimSpace(a.Patron) == "" {
			return errors.ValidationError(errors.CodeMissingField, "aliases", i, nil)
		}
	}
	for i, r := range s.Rules {
		if strings.TrimSpace(r.Patron) == "" {
			return errors.ValidationError(errors.CodeMissingField, "rules", i, nil)
		}
		if r.Kind != "" && !r.Kind.IsValid() {
			return errors.ValidationError(errors.CodeInvalidState, "rules.kind", r.Kind, nil)
		}
	}
	return nil
}

// Apply validates the seeds and writes them to target, catalogs first
func (s *Seeds) Apply(ctx context.Context, target SeedTarget, log logger.Logger) (*SeedResult, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	log = logger.OrGlobal(log).WithComponent("seeds")
	res := &SeedResult{}

	for i := range s.Currencies {
		if err := target.SaveCurrency(ctx, &s.Currencies[i]); err != nil {
			return res, err
		}
		res.Currencies++
	}
	for i := range s.Accounts {
		if err := target.SaveAccount(ctx, &s.Accounts[i]); err != nil {
			return res, err
		}
		res.Accounts++
	}
	for i := range s.ThirdParties {
		if err := target.SaveThirdParty(ctx, &s.ThirdParties[i]); err != nil {
			return res, err
		}
		res.ThirdParties++
	}
	for i := range s.References {
		if err := target.SaveReference(ctx, &s.References[i]); err != nil {
			return res, err
		}
		res.References++
	}
	for i := range s.Aliases {
		if err := target.SaveAlias(ctx, &s.Aliases[i]); err != nil {
			return res, err
		}
		res.Aliases++
	}
	for i := range s.Rules {
		if err := target.SaveRule(ctx, &s.Rules[i]); err != nil {
			return res, err
		}
		res.Rules++
	}

	log.WithFields(logger.Fields{
		"currencies":    res.Currencies,
		"accounts":      res.Accounts,
		"third_parties": res.ThirdParties,
		"references":    res.References,
		"aliases":       res.Aliases,
		"rules":         res.Rules,
	}).Info("Applied seeds")
	return res, nil
}
