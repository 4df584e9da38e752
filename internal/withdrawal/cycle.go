package withdrawal

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"privacy-relay-settlement/internal/models"
	"privacy-relay-settlement/internal/store"
)

const (
	partialMinBps  = 3000
	partialMaxBps  = 7000
	bpsDenominator = 10_000
)

// CycleReport summarizes one pass of the worker.
type CycleReport struct {
	Claimed      int
	BelowMinimum int
	Deferred     int
	Results      []models.WithdrawalResult
}

// Failed counts the results that did not pay anything out.
func (r *CycleReport) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Withdrawn == 0 {
			n++
		}
	}
	return n
}

// plan is one session selected for this cycle and the amount to request.
type plan struct {
	session     models.DepositSession
	amount      int64
	intentional bool
}

// RunCycle performs one claim, select and execute pass.
func (w *Worker) RunCycle(ctx context.Context) (*CycleReport, error) {
	cfg := w.loadSettings(ctx)
	return w.runCycle(ctx, cfg, true)
}

func (w *Worker) runCycle(ctx context.Context, cfg cycleSettings, throttled bool) (*CycleReport, error) {
	claimed, err := w.deps.Sessions.ClaimReadySessions(ctx, store.ClaimParams{
		Now:          w.now().UTC(),
		Limit:        cfg.batchSize,
		LeaseTimeout: cfg.leaseTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to claim sessions: %w", err)
	}

	report := &CycleReport{Claimed: len(claimed)}
	if len(claimed) == 0 {
		return report, nil
	}

	eligible, belowMin := splitByMinimum(claimed, cfg.minLamports)
	report.BelowMinimum = len(belowMin)

	w.shuffle(eligible)

	quota := len(eligible)
	if throttled {
		quota = throttle(len(eligible), cfg.percentage)
	}
	selected, deferred := eligible[:quota], eligible[quota:]
	report.Deferred = len(deferred)

	release := make([]string, 0, len(belowMin)+len(deferred))
	for _, s := range belowMin {
		release = append(release, s.Id)
	}
	for _, s := range deferred {
		release = append(release, s.Id)
	}
	if err := w.deps.Sessions.ReleaseSessions(ctx, release); err != nil {
		// The lease timeout makes these claimable again later.
		zap.L().Error("Failed to release sessions", zap.Int("count", len(release)), zap.Error(err))
	}

	for _, p := range w.assignPartials(selected, cfg) {
		report.Results = append(report.Results, w.execute(ctx, p, cfg))
	}
	return report, nil
}

// splitByMinimum separates sessions whose remaining balance is too small to
// be worth a withdrawal.
func splitByMinimum(sessions []models.DepositSession, minLamports int64) (eligible, below []models.DepositSession) {
	for _, s := range sessions {
		if s.Remaining() < minLamports {
			zap.L().Debug("Session below withdrawal minimum",
				zap.String("session_id", s.Id),
				zap.Int64("remaining", s.Remaining()),
				zap.Int64("min_lamports", minLamports))
			below = append(below, s)
			continue
		}
		eligible = append(eligible, s)
	}
	return eligible, below
}

// throttle returns ceil(percentage% of n), at least 1 and at most n.
func throttle(n, percentage int) int {
	if n == 0 {
		return 0
	}
	if percentage <= 0 || percentage > 100 {
		percentage = 100
	}
	quota := (n*percentage + 99) / 100
	if quota < 1 {
		quota = 1
	}
	if quota > n {
		quota = n
	}
	return quota
}

func (w *Worker) shuffle(sessions []models.DepositSession) {
	w.rngMu.Lock()
	defer w.rngMu.Unlock()
	w.rng.Shuffle(len(sessions), func(i, j int) {
		sessions[i], sessions[j] = sessions[j], sessions[i]
	})
}

func (w *Worker) randomBps() int64 {
	w.rngMu.Lock()
	defer w.rngMu.Unlock()
	return int64(partialMinBps + w.rng.Intn(partialMaxBps-partialMinBps+1))
}

// assignPartials gives up to partialCount sessions a random 30-70% withdrawal.
// The input is already shuffled, so taking the first candidates is random.
func (w *Worker) assignPartials(selected []models.DepositSession, cfg cycleSettings) []plan {
	plans := make([]plan, 0, len(selected))
	partials := 0
	for _, s := range selected {
		p := plan{session: s, amount: s.Remaining()}
		if partials < cfg.partialCount && s.Remaining() >= cfg.partialMin {
			if amount, ok := partialAmount(s.Remaining(), w.randomBps(), cfg.partialMin, cfg.minLamports); ok {
				p.amount = amount
				p.intentional = true
				partials++
			}
		}
		plans = append(plans, p)
	}
	return plans
}

// partialAmount computes bps of remaining, raised to at least partialMin.
// It reports false when the raised amount leaves the 30-70% band or would
// leave a remainder under withdrawMin that can never be withdrawn on its own;
// the session is then withdrawn in full.
func partialAmount(remaining, bps, partialMin, withdrawMin int64) (int64, bool) {
	share := func(b int64) int64 {
		return decimal.NewFromInt(remaining).
			Mul(decimal.NewFromInt(b)).
			Div(decimal.NewFromInt(bpsDenominator)).
			Floor().
			IntPart()
	}
	amount := share(bps)
	if amount < partialMin {
		amount = partialMin
	}
	if amount <= 0 || amount > share(partialMaxBps) || remaining-amount < withdrawMin {
		return 0, false
	}
	return amount, true
}
