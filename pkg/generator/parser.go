package generator

import (
	"fmt"

	"github.com/paideia-labs/paideia/pkg/config"
	"github.com/paideia-labs/paideia/pkg/fault"
)

// validateDraft checks the model's draft against the generation contract:
// exact count, exact difficulty histogram, and per-exercise test floors.
// Violations are contract faults so the engine's narrowed retry fires.
func validateDraft(exercises []DraftExercise, cfg config.GeneratorConfig) error {
	if len(exercises) != cfg.ExerciseCount {
		return contractErr("expected %d exercises, got %d", cfg.ExerciseCount, len(exercises))
	}

	histogram := map[Difficulty]int{}
	for i, ex := range exercises {
		if ex.Title == "" {
			return contractErr("exercise %d has no title", i)
		}
		switch ex.Difficulty {
		case DifficultyEasy, DifficultyMedium, DifficultyHard:
			histogram[ex.Difficulty]++
		default:
			return contractErr("exercise %d has invalid difficulty %q", i, ex.Difficulty)
		}
		if len(ex.TestCases) < cfg.MinTestCases {
			return contractErr("exercise %d has %d test cases, need %d", i, len(ex.TestCases), cfg.MinTestCases)
		}
		hidden := 0
		for _, tc := range ex.TestCases {
			if tc.IsHidden {
				hidden++
			}
		}
		if hidden == 0 {
			return contractErr("exercise %d has no hidden test case", i)
		}
	}

	if histogram[DifficultyEasy] != cfg.EasyCount ||
		histogram[DifficultyMedium] != cfg.MediumCount ||
		histogram[DifficultyHard] != cfg.HardCount {
		return contractErr("difficulty mix %d/%d/%d does not match required %d/%d/%d",
			histogram[DifficultyEasy], histogram[DifficultyMedium], histogram[DifficultyHard],
			cfg.EasyCount, cfg.MediumCount, cfg.HardCount)
	}
	return nil
}

func contractErr(format string, args ...any) error {
	return fault.New(fault.KindContract, component, "validate_draft", fmt.Sprintf(format, args...))
}

// validateIndices checks an approval selection: non-empty, no duplicates,
// every index inside the draft.
func validateIndices(indices []int, draftLen int) error {
	if len(indices) == 0 {
		return fault.New(fault.KindRequest, component, "approve",
			"approved indices must not be empty; cancel the job to discard it")
	}
	seen := make(map[int]bool, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= draftLen {
			return fault.New(fault.KindRequest, component, "approve",
				fmt.Sprintf("index %d is outside the draft range 0..%d", idx, draftLen-1))
		}
		if seen[idx] {
			return fault.New(fault.KindRequest, component, "approve",
				fmt.Sprintf("duplicate index %d", idx))
		}
		seen[idx] = true
	}
	return nil
}
