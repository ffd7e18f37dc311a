package service

import (
	"context"
	"math/rand/v2"
	"strings"

	"wapool/internal/constants"
	"wapool/internal/metrics"
	"wapool/internal/models"

	"github.com/sirupsen/logrus"
)

// SelectionResult is the outcome of picking an active number. Found is false
// when no number is active anywhere; that is a normal result, not an error.
type SelectionResult struct {
	Found       bool   `json:"success"`
	Number      string `json:"number,omitempty"`
	AppID       string `json:"app,omitempty"`
	AppName     string `json:"appName,omitempty"`
	WhatsAppURL string `json:"whatsappUrl,omitempty"`
	TotalActive int    `json:"totalActive"`
}

type candidate struct {
	app    *models.App
	number string
}

// Selector picks one active number uniformly at random across every app.
type Selector struct {
	apps        AppStore
	audit       *AuditLog
	redirectURL string
	logger      *logrus.Logger
	intn        func(n int) int
}

func NewSelector(apps AppStore, audit *AuditLog, logger *logrus.Logger) *Selector {
	return &Selector{
		apps:        apps,
		audit:       audit,
		redirectURL: constants.DefaultSelectionRedirectBaseURL,
		logger:      logger,
		intn:        rand.IntN,
	}
}

func (s *Selector) Pick(ctx context.Context) (SelectionResult, error) {
	apps, err := s.apps.ListApps(ctx)
	if err != nil {
		return SelectionResult{}, err
	}

	var pool []candidate
	for _, app := range apps {
		for _, key := range app.SortedNumbers() {
			if app.Numbers[key].Active {
				pool = append(pool, candidate{app: app, number: key})
			}
		}
	}

	if len(pool) == 0 {
		metrics.Selections.WithLabelValues("empty").Inc()
		s.logger.Warn("No active numbers available for selection")
		return SelectionResult{Found: false}, nil
	}

	picked := pool[s.intn(len(pool))]
	metrics.Selections.WithLabelValues("picked").Inc()

	result := SelectionResult{
		Found:       true,
		Number:      picked.number,
		AppID:       picked.app.AppID,
		AppName:     picked.app.AppName,
		WhatsAppURL: s.redirectURL + strings.TrimPrefix(picked.number, "+"),
		TotalActive: len(pool),
	}

	s.audit.RecordAsync(models.LogTypeRedirect, "Redirected to "+picked.number, map[string]interface{}{
		"number":      picked.number,
		"appId":       picked.app.AppID,
		"appName":     picked.app.AppName,
		"totalActive": len(pool),
	})
	return result, nil
}
