package validation

import "fmt"

// Rule es una regla de campo: un predicado y el mensaje a mostrar si falla.
type Rule struct {
	Test    func(value string) bool
	Message string
}

func Check(test func(string) bool, message string) Rule {
	return Rule{Test: test, Message: message}
}

func RequiredRule(field string) Rule {
	return Rule{Test: Required, Message: fmt.Sprintf("%s is required", field)}
}

func MinLengthRule(field string, n int) Rule {
	return Rule{
		Test:    func(s string) bool { return MinLength(s, n) },
		Message: fmt.Sprintf("%s must be at least %d characters", field, n),
	}
}

func MaxLengthRule(field string, n int) Rule {
	return Rule{
		Test:    func(s string) bool { return MaxLength(s, n) },
		Message: fmt.Sprintf("%s must be at most %d characters", field, n),
	}
}

// Optional solo aplica la regla cuando el valor no esta vacio.
func Optional(rule Rule) Rule {
	return Rule{
		Test:    func(s string) bool { return !Required(s) || rule.Test(s) },
		Message: rule.Message,
	}
}

// Errors tiene a lo sumo un mensaje por campo.
type Errors map[string]string

func (e Errors) OK() bool { return len(e) == 0 }

type field struct {
	name  string
	value string
	rules []Rule
}

// Form agrega reglas por campo. Las reglas se evaluan en el orden declarado y
// cada campo se corta en la primera que falla.
type Form struct {
	fields []field
}

func NewForm() *Form {
	return &Form{}
}

func (f *Form) Field(name, value string, rules ...Rule) *Form {
	f.fields = append(f.fields, field{name: name, value: value, rules: rules})
	return f
}

func (f *Form) Validate() Errors {
	errs := Errors{}
	for _, fl := range f.fields {
		if _, seen := errs[fl.name]; seen {
			continue
		}
		for _, rule := range fl.rules {
			if rule.Test != nil && !rule.Test(fl.value) {
				errs[fl.name] = rule.Message
				break
			}
		}
	}
	return errs
}
