package routing

import (
	"fmt"
	"regexp"
)

// directivePattern matches the self-closing router tag. Attribute order is fixed
// and values may not contain double quotes.
var directivePattern = regexp.MustCompile(`<routePrompt prompt\s*=\s*"([^"]*)" model\s*=\s*"([^"]*)"\s*/>`)

// Directive is the decoded form of a router model reply.
type Directive struct {
	IsRouting       bool   `json:"isRouting"`
	ForwardedPrompt string `json:"forwardedPrompt"`
	TargetModel     string `json:"targetModel,omitempty"`
}

// Decode extracts the first routing directive from text. Text without a
// well-formed directive yields a zero Directive.
func Decode(text string) Directive {
	m := directivePattern.FindStringSubmatch(text)
	if m == nil {
		return Directive{}
	}
	return Directive{
		IsRouting:       true,
		ForwardedPrompt: m[1],
		TargetModel:     m[2],
	}
}

// Format renders the wire form of a directive.
func Format(prompt, model string) string {
	return fmt.Sprintf(`<routePrompt prompt="%s" model="%s"/>`, prompt, model)
}
