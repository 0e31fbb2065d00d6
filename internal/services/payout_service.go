package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/heartlink/backend/internal/config"
	"github.com/heartlink/backend/internal/middleware"
	"github.com/heartlink/backend/internal/models"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"
)

const (
	payoutQueue = "wallet:payouts"
	logosDir    = "./static/provider-logos"
)

// PayoutService is the boundary with the payout rails. It validates
// destinations against configured provider patterns, queues mobile-money
// payouts to the settlement workers, and renders bank-transfer payouts
// as ISO 20022 pacs.008 credit transfers. It only records and forwards;
// settlement is confirmed out-of-band through the withdrawal lifecycle.
type PayoutService struct {
	redis    *redis.Client
	cfg      *config.WalletConfig
	patterns map[string]*regexp.Regexp
}

func NewPayoutService(redisClient *redis.Client, cfg *config.WalletConfig) *PayoutService {
	patterns := make(map[string]*regexp.Regexp, len(cfg.PayoutProviders))
	for code, provider := range cfg.PayoutProviders {
		re, err := regexp.Compile(provider.Pattern)
		if err != nil {
			log.Printf("[PAYOUT] Invalid destination pattern for provider %s, provider disabled: %v", code, err)
			continue
		}
		patterns[code] = re
	}
	return &PayoutService{
		redis:    redisClient,
		cfg:      cfg,
		patterns: patterns,
	}
}

// ValidateDestination checks a destination against its provider's
// configured format. An unknown provider is an invalid destination.
func (ps *PayoutService) ValidateDestination(provider, destination string) error {
	re, ok := ps.patterns[provider]
	if !ok {
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidDestination, provider)
	}
	if !re.MatchString(destination) {
		return ErrInvalidDestination
	}
	return nil
}

// Submit forwards a reserved payout to its rail. Bank transfers go out
// as pacs.008 messages; mobile-money rails consume the Redis queue.
func (ps *PayoutService) Submit(ctx context.Context, requestID, accountID, provider, destination string, netAmount int64) error {
	entry := map[string]any{
		"requestId":   requestID,
		"accountId":   accountID,
		"provider":    provider,
		"destination": destination,
		"netAmount":   netAmount,
		"queuedAt":    time.Now().Unix(),
	}

	if provider == "bank_transfer" {
		doc, err := ps.buildPacs008(requestID, accountID, destination, netAmount)
		if err != nil {
			return fmt.Errorf("build pacs.008: %w", err)
		}
		xmlData, err := xml.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal pacs.008: %w", err)
		}
		entry["iso20022"] = xml.Header + string(xmlData)
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	if ps.redis == nil {
		log.Printf("[PAYOUT] Redis unavailable, payout %s logged only", requestID)
		return nil
	}
	return ps.redis.RPush(ctx, payoutQueue, string(payload)).Err()
}

// buildPacs008 renders a withdrawal payout as an FI-to-FI customer
// credit transfer addressed to the settlement partner.
func (ps *PayoutService) buildPacs008(requestID, accountID, destination string, netAmount int64) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	msgID := uuid.New().String()
	now := time.Now()
	amount := float64(netAmount) / 100

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(msgID),
			CreDtTm: common.ISODateTime(now),
			NbOfTxs: "1",
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode(ps.cfg.Currency),
				Value: amount,
			},
			IntrBkSttlmDt: (*common.ISODate)(&now),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "CLRG",
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    &[]common.Max35Text{common.Max35Text(requestID)}[0],
					EndToEndId: common.Max35Text(requestID),
					TxId:       &[]common.Max35Text{common.Max35Text(requestID)}[0],
				},
				IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
					Ccy:   common.ActiveCurrencyCode(ps.cfg.Currency),
					Value: amount,
				},
				IntrBkSttlmDt: (*common.ISODate)(&now),
				ChrgBr:        "SLEV",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier("HEARTLNK")}[0],
					},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(accountID)}[0],
				},
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						ClrSysMmbId: &pacs_v08.ClearingSystemMemberIdentification2{
							MmbId: common.Max35Text("SETTLEMENT"),
						},
					},
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(destination)}[0],
				},
			},
		},
	}

	return doc, nil
}

// GetProviders lists the configured payout rails for client display.
// @Summary List payout providers
// @Description Get the payout rails available for withdrawals
// @Tags wallet
// @Produce json
// @Success 200 {array} models.PayoutProvider
// @Router /wallet/payout-providers [get]
func (ps *PayoutService) GetProviders(w http.ResponseWriter, r *http.Request) {
	providers := make([]models.PayoutProvider, 0, len(ps.cfg.PayoutProviders))
	for code, provider := range ps.cfg.PayoutProviders {
		if _, ok := ps.patterns[code]; !ok {
			continue
		}
		providers = append(providers, models.PayoutProvider{
			Code:     provider.Code,
			Name:     provider.Name,
			LogoData: ps.loadLogo(provider.Logo),
		})
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i].Code < providers[j].Code })

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	json.NewEncoder(w).Encode(providers)
}

func (ps *PayoutService) loadLogo(filename string) string {
	if filename != "" {
		path := filepath.Join(logosDir, filename)
		if data, err := os.ReadFile(path); err == nil {
			return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString(data)
		}
	}
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(middleware.PlaceholderLogoSVG))
}
