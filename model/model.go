// Package model enumerates the pretrained grammar-correction models and the
// tokenizer/architecture pairing each one needs.
package model

import (
	"errors"
	"fmt"
)

// Kind identifies one of the supported models.
type Kind int

const (
	MT5 Kind = iota + 1
	MBART
	VartaT5
)

// ErrUnknown is matched by errors.Is for any UnknownError.
var ErrUnknown = errors.New("model not available")

// UnknownError reports a model label outside the supported set.
type UnknownError struct {
	Name string
}

func (e *UnknownError) Error() string {
	return fmt.Sprintf("Model: %s not available", e.Name)
}

func (e *UnknownError) Is(target error) bool {
	return target == ErrUnknown
}

// Kinds returns every supported kind in declaration order.
func Kinds() []Kind {
	return []Kind{MT5, MBART, VartaT5}
}

// ParseKind maps an exact, case-sensitive label to its Kind.
func ParseKind(label string) (Kind, error) {
	switch label {
	case "mT5":
		return MT5, nil
	case "mBART":
		return MBART, nil
	case "VartaT5":
		return VartaT5, nil
	}
	return 0, &UnknownError{Name: label}
}

func (k Kind) String() string {
	switch k {
	case MT5:
		return "mT5"
	case MBART:
		return "mBART"
	case VartaT5:
		return "VartaT5"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	return k >= MT5 && k <= VartaT5
}

// Profile describes how the inference backend must load and drive a model.
type Profile struct {
	// Architecture is the Hugging Face model class.
	Architecture string
	// Tokenizer is the Hugging Face tokenizer class.
	Tokenizer string
	// ConfigType is the model_type recorded in the model's config.json.
	ConfigType string
	// SrcLang and TgtLang are tokenizer language tags, empty when unused.
	SrcLang string
	TgtLang string
	// DecoderStartLang names the language code whose id starts decoding.
	DecoderStartLang string
}

// Profile returns the loading profile for k. It panics on an invalid kind.
func (k Kind) Profile() Profile {
	switch k {
	case MT5:
		return Profile{
			Architecture: "MT5ForConditionalGeneration",
			Tokenizer:    "MT5Tokenizer",
			ConfigType:   "mt5",
		}
	case MBART:
		return Profile{
			Architecture:     "MBartForConditionalGeneration",
			Tokenizer:        "MBartTokenizer",
			ConfigType:       "mbart",
			SrcLang:          "ne_NP",
			TgtLang:          "ne_NP",
			DecoderStartLang: "ne_NP",
		}
	case VartaT5:
		return Profile{
			Architecture: "T5ForConditionalGeneration",
			Tokenizer:    "T5TokenizerFast",
			ConfigType:   "t5",
		}
	}
	panic(fmt.Sprintf("model: no profile for %v", k))
}
