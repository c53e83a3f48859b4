package template

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// Config controls where the workbook keeps its labels and amounts
type Config struct {
	// SheetName selects the worksheet; empty means the active sheet
	SheetName string `json:"sheet_name" mapstructure:"sheet_name"`

	// LabelColumn is the 1-based column holding the coverage labels (B)
	LabelColumn int `json:"label_column" mapstructure:"label_column"`

	// FirstAmountColumn is the 1-based column of the first document (D).
	// Document i is written to FirstAmountColumn+i.
	FirstAmountColumn int `json:"first_amount_column" mapstructure:"first_amount_column"`

	// Fallback rows used when a row cannot be detected
	Fallback Layout `json:"fallback" mapstructure:"fallback"`
}

// DefaultConfig returns the layout of the standard coverage analysis sheet
func DefaultConfig() *Config {
	return &Config{
		LabelColumn:       2,
		FirstAmountColumn: 4,
		Fallback: Layout{
			InsurerRow: 4,
			ProductRow: 5,
			PremiumRow: 6,
			StartRow:   8,
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.LabelColumn < 1 || c.LabelColumn > excelize.MaxColumns {
		return fmt.Errorf("label column out of range: %d", c.LabelColumn)
	}
	if c.FirstAmountColumn < 1 || c.FirstAmountColumn > excelize.MaxColumns {
		return fmt.Errorf("first amount column out of range: %d", c.FirstAmountColumn)
	}
	if c.FirstAmountColumn == c.LabelColumn {
		return fmt.Errorf("amount column %d would overwrite the labels", c.FirstAmountColumn)
	}
	if c.Fallback.InsurerRow < 1 || c.Fallback.ProductRow < 1 || c.Fallback.PremiumRow < 1 || c.Fallback.StartRow < 1 {
		return fmt.Errorf("fallback rows must be positive: %+v", c.Fallback)
	}
	return nil
}

// AmountColumn returns the column for the document at index
func (c *Config) AmountColumn(index int) int {
	return c.FirstAmountColumn + index
}
