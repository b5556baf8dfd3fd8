package validation

import (
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"apflow/internal/model"
)

// MinConfidence is the OCR confidence below which a review warning is raised.
const MinConfidence = 0.90

var (
	costCenterRe  = regexp.MustCompile(`^CC-\d{3}`)
	accountCodeRe = regexp.MustCompile(`^GL-\d{4}`)
)

// Validator performs field-level checks on extracted invoice data.
// Errors make the invoice require manual correction; warnings are advisory
// and never block the pipeline.
type Validator struct {
	v *validator.Validate
}

// New builds a Validator with the cost-center and account-code format rules
// registered as custom validations.
func New() *Validator {
	v := validator.New()
	// Registration only fails for empty tags, which are constants here.
	_ = v.RegisterValidation("costcenter", func(fl validator.FieldLevel) bool {
		return costCenterRe.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("accountcode", func(fl validator.FieldLevel) bool {
		return accountCodeRe.MatchString(fl.Field().String())
	})
	return &Validator{v: v}
}

// Validate checks required fields and coding formats on the extracted data.
// IsValid is true exactly when no errors were recorded.
func (vd *Validator) Validate(f *model.ExtractedFields) model.ValidationResult {
	res := model.ValidationResult{
		Errors:   []string{},
		Warnings: []string{},
	}
	if f == nil {
		res.Errors = append(res.Errors, "no extracted fields available")
		return res
	}

	if vd.v.Var(f.InvoiceNumber, "required") != nil {
		res.Errors = append(res.Errors, "invoice number is missing")
	}
	if vd.v.Var(f.VendorName, "required") != nil {
		res.Errors = append(res.Errors, "vendor name is missing")
	}
	if vd.v.Var(f.InvoiceDate, "required") != nil {
		res.Errors = append(res.Errors, "invoice date is missing")
	}
	if !f.TotalAmount.GreaterThan(decimal.Zero) {
		res.Errors = append(res.Errors, "total amount must be greater than zero")
	}

	// Coding fields: absence is a warning, presence with a bad format is an error.
	if f.CostCenter == "" {
		res.Warnings = append(res.Warnings, "cost center not provided")
	} else if vd.v.Var(f.CostCenter, "costcenter") != nil {
		res.Errors = append(res.Errors, "cost center format is invalid (expected CC-NNN)")
	}
	if f.AccountCode == "" {
		res.Warnings = append(res.Warnings, "account code not provided")
	} else if vd.v.Var(f.AccountCode, "accountcode") != nil {
		res.Errors = append(res.Errors, "account code format is invalid (expected GL-NNNN)")
	}

	if f.Confidence < MinConfidence {
		res.Warnings = append(res.Warnings, "extraction confidence below review threshold")
	}

	res.IsValid = len(res.Errors) == 0
	return res
}

// Failure builds a result carrying a single error, used when extraction
// itself failed and there is nothing to validate.
func Failure(msg string) model.ValidationResult {
	return model.ValidationResult{
		IsValid: false,
		Errors:  []string{msg},
	}
}
