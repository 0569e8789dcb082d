package matcher

// builtinSynonyms lists the phrases a form label may use for each canonical
// extracted key.
var builtinSynonyms = map[string][]string{
	"name":        {"name", "naam", "full name", "your name", "applicant name", "candidate name"},
	"email":       {"email", "e-mail", "mail", "email address", "email id"},
	"phone":       {"phone", "mobile", "contact", "telephone", "cell", "phone number", "mobile number", "contact number"},
	"aadhaar":     {"aadhaar", "aadhar", "adhaar", "uid", "unique id", "aadhaar number"},
	"pan":         {"pan", "permanent account", "pan number", "pan card"},
	"address":     {"address", "location", "residence", "residential address", "street address"},
	"pincode":     {"pincode", "pin", "pin code", "postal", "postal code", "zip", "zip code"},
	"dob":         {"dob", "date of birth", "birth date", "birthdate", "birthday", "birth"},
	"gender":      {"gender", "sex"},
	"father_name": {"father name", "fathers name", "guardian name"},
	"epic":        {"epic", "voter id", "epic number", "voter id number"},
}

// autocompleteKeys maps HTML autocomplete tokens to canonical keys.
var autocompleteKeys = map[string]string{
	"name":           "name",
	"given-name":     "name",
	"bday":           "dob",
	"email":          "email",
	"tel":            "phone",
	"tel-national":   "phone",
	"postal-code":    "pincode",
	"street-address": "address",
	"address-line1":  "address",
	"sex":            "gender",
}

// stopwords carry no matching signal in form labels.
var stopwords = map[string]bool{
	"of": true, "the": true, "your": true, "enter": true, "please": true,
	"a": true, "an": true, "in": true, "as": true, "per": true, "here": true,
}

// qualifiers mark a label as describing a person other than the document
// holder.
var qualifiers = map[string]bool{
	"father": true, "mother": true, "guardian": true, "parent": true,
	"spouse": true, "husband": true, "wife": true, "nominee": true,
	"emergency": true, "relative": true,
}
