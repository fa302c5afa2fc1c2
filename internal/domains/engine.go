// ABOUTME: Generic engine that renders a declarative domain table into a pack of tools.
// ABOUTME: Provides the list, search, get, create and report operation kinds.

package domains

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/2389/qbo-gateway/internal/navigation"
	"github.com/2389/qbo-gateway/internal/packs"
	"github.com/2389/qbo-gateway/internal/qbo"
)

// Call is the validated input of one operation.
type Call struct {
	Args  Args
	Today string
}

// RunFunc performs an operation against a tenant-bound client.
type RunFunc func(ctx context.Context, api qbo.API, call Call) (json.RawMessage, error)

// Operation is one row of a domain table.
type Operation struct {
	Name      string // suffix appended to the table prefix
	Summary   string
	Params    []Param
	OpenEnded bool // extra fields are forwarded, as for create
	Run       RunFunc
}

// EntityTable declares everything one domain exposes.
type EntityTable struct {
	Domain     navigation.Domain
	Prefix     string
	Summary    string
	Operations []Operation
}

// Options configures pack construction.
type Options struct {
	// Now supplies the current time for date-relative filters. Defaults to time.Now.
	Now func() time.Time
}

func (o Options) today() string {
	now := time.Now
	if o.Now != nil {
		now = o.Now
	}
	return now().Format(DateLayout)
}

// Build renders t into a pack.
func Build(t EntityTable, opts Options) *packs.Pack {
	p := &packs.Pack{
		Domain:  t.Domain,
		Prefix:  t.Prefix,
		Summary: t.Summary,
		Tools:   make([]*packs.Tool, 0, len(t.Operations)),
	}
	for _, op := range t.Operations {
		p.Tools = append(p.Tools, &packs.Tool{
			Definition: packs.ToolDefinition{
				Name:        t.Prefix + op.Name,
				Description: op.Summary,
				InputSchema: schema(op.Params, op.OpenEnded),
			},
			Handler: handler(op, opts),
		})
	}
	return p
}

func handler(op Operation, opts Options) packs.ToolHandler {
	return func(ctx context.Context, api qbo.API, raw json.RawMessage) (json.RawMessage, error) {
		args, err := parseArgs(raw, op.Params)
		if err != nil {
			return nil, err
		}
		return op.Run(ctx, api, Call{Args: args, Today: opts.today()})
	}
}

var pageSizeParam = Param{
	Name:        "page_size",
	Type:        TypeInteger,
	Description: fmt.Sprintf("Records fetched per upstream request (default %d, max %d)", qbo.DefaultPageSize, qbo.MaxPageSize),
	Rules:       fmt.Sprintf("min=1,max=%d", qbo.MaxPageSize),
}

// List fetches every entity matching the supplied filters, page by page.
func List(name, entity, summary string, filters ...Filter) Operation {
	params := make([]Param, 0, len(filters)+1)
	for _, f := range filters {
		params = append(params, f.Param)
	}
	params = append(params, pageSizeParam)

	return Operation{
		Name:    name,
		Summary: summary,
		Params:  params,
		Run: func(ctx context.Context, api qbo.API, call Call) (json.RawMessage, error) {
			var conds []Condition
			for _, f := range filters {
				conds = append(conds, f.conditions(call.Args, call.Today)...)
			}
			items, err := api.QueryAll(ctx, BuildQuery(entity, conds), call.Args.Int(pageSizeParam.Name))
			if err != nil {
				return nil, err
			}
			return json.Marshal(items)
		},
	}
}

// Search matches a required text term against field with LIKE, plus any extra filters.
func Search(name, entity, field, summary string, filters ...Filter) Operation {
	term := Like("query", field, "Text to search for in "+field, true)
	return List(name, entity, summary, append([]Filter{term}, filters...)...)
}

// EntityPath is the REST path of entity, optionally followed by an id.
func EntityPath(entity string, id ...string) string {
	p := "/" + strings.ToLower(entity)
	for _, seg := range id {
		p += "/" + url.PathEscape(seg)
	}
	return p
}

// Get reads one entity by id.
func Get(entity, summary string) Operation {
	return Operation{
		Name:    "get",
		Summary: summary,
		Params:  []Param{{Name: "id", Type: TypeString, Required: true, Description: entity + " id"}},
		Run: func(ctx context.Context, api qbo.API, call Call) (json.RawMessage, error) {
			return api.Get(ctx, EntityPath(entity, call.Args.String("id")), nil)
		},
	}
}

// Create posts the argument object as a new entity once required fields are present.
func Create(entity, summary string, required ...Param) Operation {
	params := make([]Param, len(required))
	for i, p := range required {
		p.Required = true
		params[i] = p
	}
	return Operation{
		Name:      "create",
		Summary:   summary,
		Params:    params,
		OpenEnded: true,
		Run: func(ctx context.Context, api qbo.API, call Call) (json.RawMessage, error) {
			body, err := call.Args.Body()
			if err != nil {
				return nil, err
			}
			return api.Post(ctx, EntityPath(entity), nil, body)
		},
	}
}

var reportParams = []Param{
	{Name: "start_date", Type: TypeString, Date: true, Description: "Report period start (YYYY-MM-DD)"},
	{Name: "end_date", Type: TypeString, Date: true, Description: "Report period end (YYYY-MM-DD)"},
	{Name: "accounting_method", Type: TypeString, Enum: []string{"Cash", "Accrual"}, Description: "Accounting basis"},
}

// Report fetches a named report. The payload is returned uninterpreted.
func Report(name, report, summary string) Operation {
	return Operation{
		Name:    name,
		Summary: summary,
		Params:  reportParams,
		Run: func(ctx context.Context, api qbo.API, call Call) (json.RawMessage, error) {
			q := url.Values{}
			for _, p := range reportParams {
				if v := call.Args.String(p.Name); v != "" {
					q.Set(p.Name, v)
				}
			}
			return api.Get(ctx, "/reports/"+report, q)
		},
	}
}
