package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dshills/nftdrop/internal/solana"
	"github.com/manifoldco/promptui"
)

var (
	errInputEmpty     = errors.New("input is empty")
	errInvalidChoice  = errors.New("invalid choice")
	errInvalidAmount  = errors.New("invalid SOL amount")
	errAmountTooLarge = errors.New("SOL amount out of range")
)

// confirm asks the user to go on with label. Tests replace it.
var confirm = promptContinue

func promptContinue(label string) (bool, error) {
	promptText := promptui.Prompt{
		Label: label + " (y/n)",
		Validate: func(input string) error {
			if len(input) == 0 {
				return errInputEmpty
			}
			lower := strings.ToLower(input)
			if lower == "y" || lower == "n" {
				return nil
			}
			return errInvalidChoice
		},
	}
	raw, err := promptText.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			return false, nil
		}
		return false, err
	}
	return strings.ToLower(strings.TrimSpace(raw)) == "y", nil
}

// confirmOrAbort returns errAborted unless --yes is set or the user agrees.
func confirmOrAbort(label string) error {
	if flagYes {
		return nil
	}
	ok, err := confirm(label)
	if err != nil {
		return err
	}
	if !ok {
		return errAborted
	}
	return nil
}

// parseSOL converts a decimal SOL amount such as "0.25" to lamports
// without going through floating point.
func parseSOL(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return 0, fmt.Errorf("%w: %q", errInvalidAmount, s)
	}
	if len(frac) > 9 {
		return 0, fmt.Errorf("%w: %q has more than 9 decimals", errInvalidAmount, s)
	}
	if whole == "" {
		whole = "0"
	}
	w, err := strconv.ParseUint(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errInvalidAmount, s)
	}
	var f uint64
	if frac != "" {
		f, err = strconv.ParseUint(frac+strings.Repeat("0", 9-len(frac)), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", errInvalidAmount, s)
		}
	}
	if w > (^uint64(0)-f)/solana.LamportsPerSOL {
		return 0, fmt.Errorf("%w: %q", errAmountTooLarge, s)
	}
	return w*solana.LamportsPerSOL + f, nil
}

// formatSOL renders lamports as SOL with up to 9 decimals.
func formatSOL(lamports uint64) string {
	whole := lamports / solana.LamportsPerSOL
	frac := lamports % solana.LamportsPerSOL
	if frac == 0 {
		return strconv.FormatUint(whole, 10)
	}
	return strings.TrimRight(fmt.Sprintf("%d.%09d", whole, frac), "0")
}
