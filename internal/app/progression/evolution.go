package progression

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/ghostline/ghostxp/internal/domain"
)

// Stage is one row of the evolution table.
type Stage struct {
	Stage       int                  `json:"stage"`
	XPThreshold int64                `json:"xp_threshold"`
	Form        domain.EvolutionForm `json:"form"`
	Name        string               `json:"name"`
	BonusXP     int64                `json:"bonus_xp"`
}

// EvolutionBonusXP is paid once per stage reached.
const EvolutionBonusXP = 100

var stages = []Stage{
	{1, 0, domain.FormBaby, "Baby Ghost", 0},
	{2, 500, domain.FormSpectralI, "Spectral I", EvolutionBonusXP},
	{3, 1500, domain.FormSpectralII, "Spectral II", EvolutionBonusXP},
	{4, 3500, domain.FormSpectralIII, "Spectral III", EvolutionBonusXP},
	{5, 7000, domain.FormEthereal, "Ethereal", EvolutionBonusXP},
	{6, 15000, domain.FormPhantom, "Phantom", EvolutionBonusXP},
	{7, 30000, domain.FormOmega, "Omega Ghost", EvolutionBonusXP},
}

// MaxStage is the final evolution stage.
var MaxStage = len(stages)

// Stages returns a copy of the evolution table.
func Stages() []Stage {
	out := make([]Stage, len(stages))
	copy(out, stages)
	return out
}

// StageInfo returns the table row of a stage, clamped to the table.
func StageInfo(stage int) Stage {
	if stage < 1 {
		stage = 1
	}
	if stage > MaxStage {
		stage = MaxStage
	}
	return stages[stage-1]
}

// StageFor returns the highest stage whose threshold totalXP meets.
func StageFor(totalXP int64) int {
	stage := 1
	for _, s := range stages {
		if totalXP >= s.XPThreshold {
			stage = s.Stage
		}
	}
	return stage
}

// evolve advances p through every stage its XP has reached. Each crossed
// stage pays its bonus once and writes an audit record; bonuses can cross
// further thresholds, so the check repeats until it settles. Stages never
// move backwards.
func (e *Engine) evolve(ctx context.Context, tx domain.Tx, fx *effects, p *domain.ProgressionProfile) error {
	for {
		target := StageFor(p.TotalXP)
		if target <= p.EvolutionStage {
			return nil
		}
		for next := p.EvolutionStage + 1; next <= target; next++ {
			from := StageInfo(p.EvolutionStage)
			to := StageInfo(next)
			now := e.clock()

			rec := domain.EvolutionRecord{
				ID:            newID(),
				AccountID:     p.AccountID,
				FromStage:     from.Stage,
				ToStage:       to.Stage,
				FromForm:      from.Form,
				ToForm:        to.Form,
				Trigger:       "xp_threshold",
				XPAtEvolution: p.TotalXP,
				CreatedAt:     now,
			}
			if err := tx.AppendEvolution(ctx, rec); err != nil {
				return err
			}
			p.EvolutionStage = to.Stage
			p.EvolutionForm = to.Form

			if to.BonusXP > 0 {
				if err := e.appendXP(ctx, tx, fx, p, to.BonusXP, "Evolution to "+to.Name, domain.CatEvolution, ""); err != nil {
					return err
				}
			}

			fx.evolutions = append(fx.evolutions, to.Stage)
			fx.notify(e.note(p.AccountID, domain.NotifyEvolution,
				"Your ghost evolved!",
				fmt.Sprintf("Your ghost evolved to %s!", to.Name),
				map[string]string{"stage": strconv.Itoa(to.Stage), "form": string(to.Form)}))
			e.log.Info("evolution",
				zap.String("account", p.AccountID), zap.Int("stage", to.Stage), zap.Int64("total_xp", p.TotalXP))
		}
	}
}

// EvolutionStatus is the evolution view of an account.
type EvolutionStatus struct {
	Stage       int                  `json:"stage"`
	Form        domain.EvolutionForm `json:"form"`
	Name        string               `json:"name"`
	TotalXP     int64                `json:"total_xp"`
	MaxStage    bool                 `json:"max_stage"`
	NextStage   int                  `json:"next_stage,omitempty"`
	NextForm    domain.EvolutionForm `json:"next_form,omitempty"`
	NextName    string               `json:"next_name,omitempty"`
	NextStageXP int64                `json:"next_stage_xp,omitempty"`
	XPNeeded    int64                `json:"xp_needed"`
	CanEvolve   bool                 `json:"can_evolve"`
}

// EvolutionStatus reports the current stage and the distance to the next one.
func (e *Engine) EvolutionStatus(ctx context.Context, accountID string) (EvolutionStatus, error) {
	p, err := e.GetProfile(ctx, accountID)
	if err != nil {
		return EvolutionStatus{}, err
	}
	return statusFor(p), nil
}

func statusFor(p domain.ProgressionProfile) EvolutionStatus {
	cur := StageInfo(p.EvolutionStage)
	st := EvolutionStatus{
		Stage:   cur.Stage,
		Form:    cur.Form,
		Name:    cur.Name,
		TotalXP: p.TotalXP,
	}
	if cur.Stage >= MaxStage {
		st.MaxStage = true
		return st
	}
	next := StageInfo(cur.Stage + 1)
	st.NextStage = next.Stage
	st.NextForm = next.Form
	st.NextName = next.Name
	st.NextStageXP = next.XPThreshold
	st.XPNeeded = max(0, next.XPThreshold-p.TotalXP)
	st.CanEvolve = p.TotalXP >= next.XPThreshold
	return st
}

// EvolutionHistory lists the stage advances of an account.
func (e *Engine) EvolutionHistory(ctx context.Context, accountID string) ([]domain.EvolutionRecord, error) {
	var recs []domain.EvolutionRecord
	err := e.read(ctx, accountID, func(tx domain.Tx) error {
		var err error
		recs, err = tx.Evolutions(ctx, accountID)
		return err
	})
	return recs, err
}
