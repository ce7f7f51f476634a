// Package planmodifiers holds plan modifiers shared by the provider resources.
package planmodifiers

import (
	"context"
	"fmt"
	"regexp"

	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/planmodifier"
	"github.com/hashicorp/terraform-plugin-framework/types"
)

// ShortNameMaxLength is the sAMAccountName length limit for user objects.
const ShortNameMaxLength = 20

var shortNameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// useAttributeForShortName implements the plan modifier.
type useAttributeForShortName struct {
	source string
}

// UseAttributeForShortName returns a plan modifier that sets the short name
// (sAMAccountName) to the value of the source attribute when it is not explicitly
// configured, provided the source value is valid as a short name.
func UseAttributeForShortName(source string) planmodifier.String {
	return useAttributeForShortName{
		source: source,
	}
}

// Description returns a human-readable description of the plan modifier.
func (m useAttributeForShortName) Description(_ context.Context) string {
	return fmt.Sprintf("uses the value of %s if the short name is not explicitly configured", m.source)
}

// MarkdownDescription returns a markdown description of the plan modifier.
func (m useAttributeForShortName) MarkdownDescription(_ context.Context) string {
	return fmt.Sprintf("uses the value of `%s` if the short name is not explicitly configured", m.source)
}

// PlanModifyString implements the plan modification logic.
func (m useAttributeForShortName) PlanModifyString(ctx context.Context, req planmodifier.StringRequest, resp *planmodifier.StringResponse) {
	if !req.ConfigValue.IsNull() {
		return
	}

	var source types.String
	resp.Diagnostics.Append(req.Plan.GetAttribute(ctx, path.Root(m.source), &source)...)
	if resp.Diagnostics.HasError() {
		return
	}

	if source.IsUnknown() || source.IsNull() {
		return
	}

	value := source.ValueString()

	if len(value) > ShortNameMaxLength {
		resp.Diagnostics.AddAttributeError(
			req.Path,
			"Short Name Required",
			fmt.Sprintf(
				"The %s '%s' is %d characters long, which exceeds the %d character limit for short names. "+
					"Please explicitly specify a '%s' that is %d characters or less.",
				m.source, value, len(value), ShortNameMaxLength, req.Path, ShortNameMaxLength,
			),
		)
		return
	}

	if !shortNameRegex.MatchString(value) {
		resp.Diagnostics.AddAttributeError(
			req.Path,
			"Short Name Required",
			fmt.Sprintf(
				"The %s '%s' contains characters that are not valid in short names. "+
					"Short names can only contain letters, numbers, dots, underscores, and hyphens. "+
					"Please explicitly specify a valid '%s'.",
				m.source, value, req.Path,
			),
		)
		return
	}

	resp.PlanValue = types.StringValue(value)
}
