package validation

// ContactInput es el formulario de contacto / cotizacion del sitio.
type ContactInput struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	ZipCode string `json:"zip_code"`
	Website string `json:"website"`
	Message string `json:"message"`
}

func ValidateContact(in ContactInput) Errors {
	return NewForm().
		Field("name", in.Name,
			RequiredRule("name"),
			Check(Name, "name contains invalid characters"),
		).
		Field("email", in.Email,
			RequiredRule("email"),
			Check(Email, "email is not valid"),
		).
		Field("phone", in.Phone,
			Optional(Check(Phone, "phone number is not valid")),
		).
		Field("zip_code", in.ZipCode,
			Optional(Check(ZipCode, "zip code is not valid")),
		).
		Field("website", in.Website,
			Optional(Check(URL, "website must be an http(s) url")),
		).
		Field("message", in.Message,
			RequiredRule("message"),
			MinLengthRule("message", 10),
			MaxLengthRule("message", 2000),
		).
		Validate()
}
