package provider

import (
	"context"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/terraform-provider-adclient/internal/adclient"
	ldapclient "github.com/isometry/terraform-provider-adclient/internal/ldap"
	"github.com/isometry/terraform-provider-adclient/internal/provider/helpers"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ datasource.DataSource = &ObjectDataSource{}

func NewObjectDataSource() datasource.DataSource {
	return &ObjectDataSource{}
}

// ObjectDataSource checks an object's existence and reads its attributes.
type ObjectDataSource struct {
	client *adclient.ADClient
}

// ObjectDataSourceModel describes the data source data model.
type ObjectDataSourceModel struct {
	ID          types.String `tfsdk:"id"`
	Object      types.String `tfsdk:"object"`
	ObjectClass types.String `tfsdk:"object_class"`
	Attribute   types.String `tfsdk:"attribute"`
	Exists      types.Bool   `tfsdk:"exists"`
	DN          types.String `tfsdk:"dn"`
	Values      types.List   `tfsdk:"values"`
	Attributes  types.Map    `tfsdk:"attributes"`
}

func (d *ObjectDataSource) Metadata(ctx context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_object"
}

func (d *ObjectDataSource) Schema(ctx context.Context, req datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Looks up any directory object. A missing object is not an error: `exists` is `false` " +
			"and the other computed attributes are null.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "Same as `object`.",
				Computed:            true,
			},
			"object": schema.StringAttribute{
				MarkdownDescription: "The object: DN, short name, UPN, objectGUID or objectSid.",
				Required:            true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
				},
			},
			"object_class": schema.StringAttribute{
				MarkdownDescription: "Only report the object as existing when it has this objectClass (e.g. `organizationalUnit`).",
				Optional:            true,
			},
			"attribute": schema.StringAttribute{
				MarkdownDescription: "Single attribute whose values are returned in `values`.",
				Optional:            true,
			},
			"exists": schema.BoolAttribute{
				MarkdownDescription: "Whether the object exists (with the requested objectClass).",
				Computed:            true,
			},
			"dn": schema.StringAttribute{
				MarkdownDescription: "Distinguished Name of the object.",
				Computed:            true,
			},
			"values": schema.ListAttribute{
				MarkdownDescription: "Values of `attribute`. Empty when the object does not carry it.",
				ElementType:         types.StringType,
				Computed:            true,
			},
			"attributes": schema.MapAttribute{
				MarkdownDescription: "Every attribute of the object, as a map of attribute name to values.",
				ElementType:         helpers.AttributesType.ElemType,
				Computed:            true,
			},
		},
	}
}

func (d *ObjectDataSource) Configure(ctx context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	d.client = clientFromProviderData(req.ProviderData, "Data Source", &resp.Diagnostics)
}

func (d *ObjectDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	ctx = initializeLogging(ctx)

	var data ObjectDataSourceModel
	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	object := data.Object.ValueString()
	logCompletion := ldapclient.LogDataSourceOperation(ctx, "adclient_object", "read", map[string]any{
		"object":       object,
		"object_class": data.ObjectClass.ValueString(),
		"attribute":    data.Attribute.ValueString(),
	})
	defer func() { logCompletion(diagnosticsError(resp.Diagnostics)) }()

	if !requireClient(d.client, &resp.Diagnostics) {
		return
	}

	data.ID = data.Object
	data.Exists = types.BoolValue(false)
	data.DN = types.StringNull()
	data.Values = types.ListNull(types.StringType)
	data.Attributes = types.MapNull(helpers.AttributesType.ElemType)

	dn := object
	if !ldapclient.LooksLikeDN(object) {
		resolved, err := d.client.GetObjectDN(ctx, object)
		if adclient.ErrorCode(err) == goldap.LDAPResultNoSuchObject {
			tflog.Debug(ctx, "Object not found", map[string]any{"object": object})
			resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
			return
		}
		if err != nil {
			addClientError(&resp.Diagnostics, "Error Resolving Object", "Could not resolve "+object+".", err)
			return
		}
		dn = resolved
	}

	exists, err := d.client.IfDNExists(ctx, dn, data.ObjectClass.ValueString())
	if err != nil {
		addClientError(&resp.Diagnostics, "Error Checking Object", "", err)
		return
	}
	if !exists {
		resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
		return
	}

	attributes, err := d.client.GetObjectAttributes(ctx, dn)
	if err != nil {
		addClientError(&resp.Diagnostics, "Error Reading Object Attributes", "", err)
		return
	}
	attributesValue, diags := helpers.AttributesMap(ctx, attributes)
	resp.Diagnostics.Append(diags...)

	var values []string
	if attribute := data.Attribute.ValueString(); attribute != "" {
		values, err = d.client.GetObjectAttribute(ctx, dn, attribute)
		if err != nil && adclient.ErrorCode(err) != goldap.LDAPResultNoSuchAttribute {
			addClientError(&resp.Diagnostics, "Error Reading Object Attribute", "", err)
			return
		}
	}
	valuesValue, diags := helpers.StringList(ctx, values)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	data.Exists = types.BoolValue(true)
	data.DN = types.StringValue(dn)
	data.Values = valuesValue
	data.Attributes = attributesValue

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}
