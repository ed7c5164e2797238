package account

import (
	"maps"

	"github.com/goliatone/go-router"
	"github.com/studyolle/go-account/middleware/csrf"
)

// TemplateAccountKey is the view key holding the signed in account claims
var TemplateAccountKey = "current_account"

// TemplateHelpersWithRouter returns view data describing the session of
// the request: the signed in account, if any, and the CSRF form field.
//
// In templates:
//
//	{% if is_authenticated %}Hi {{ current_account.Nickname }}{% endif %}
//	{{ csrf_field|safe }}
func TemplateHelpersWithRouter(ctx router.Context, sessionKey string) router.ViewContext {
	helpers := router.ViewContext{
		"is_authenticated": false,
	}

	if claims, err := GetRouterSession(ctx, sessionKey); err == nil {
		helpers["is_authenticated"] = true
		helpers[TemplateAccountKey] = claims
	}

	if token := csrf.Token(ctx); token != "" {
		field := csrf.DefaultFormFieldName
		if name, ok := ctx.Locals(csrf.DefaultContextKey + "_field").(string); ok && name != "" {
			field = name
		}
		helpers["csrf_token"] = token
		helpers["csrf_field"] = `<input type="hidden" name="` + field + `" value="` + token + `">`
	}

	return helpers
}

// WithTemplateHelpers merges the session helpers into data. Keys already
// present in data win.
func WithTemplateHelpers(ctx router.Context, sessionKey string, data router.ViewContext) router.ViewContext {
	out := TemplateHelpersWithRouter(ctx, sessionKey)
	maps.Copy(out, data)
	return out
}
