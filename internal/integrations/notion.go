package integrations

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"loancounselor-backend/internal/lenders"
	"loancounselor-backend/internal/models"
	integration_models "loancounselor-backend/internal/models/integrations"

	"github.com/jomei/notionapi"
	"github.com/rs/zerolog/log"
)

// Ensure NotionSource implements the source interfaces.
var (
	_ LenderSource     = (*NotionSource)(nil)
	_ ConnectionTester = (*NotionSource)(nil)
)

const notionPageSize = 100

// notionDatabases is the part of notionapi.DatabaseService the source needs.
type notionDatabases interface {
	Query(ctx context.Context, id notionapi.DatabaseID, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
}

type notionUsers interface {
	Me(ctx context.Context) (*notionapi.User, error)
}

// NotionSource reads the lender catalogue from a Notion database, one page per lender.
// The page title is the lender name; other columns are matched by snake-case name
// ("Interest Rate" and "interest_rate" are the same column).
type NotionSource struct {
	databaseID notionapi.DatabaseID
	databases  notionDatabases
	users      notionUsers
}

// NewNotionSource validates cfg and builds a client for it.
func NewNotionSource(cfg integration_models.NotionSourceConfig) (*NotionSource, error) {
	if cfg.Token == "" {
		return nil, errors.New("notion source requires an internal integration secret")
	}
	if cfg.DatabaseID == "" {
		return nil, errors.New("notion source requires a database id")
	}
	client := notionapi.NewClient(notionapi.Token(cfg.Token))
	return &NotionSource{
		databaseID: notionapi.DatabaseID(cfg.DatabaseID),
		databases:  client.Database,
		users:      client.User,
	}, nil
}

// Load pages through the whole database.
func (n *NotionSource) Load(ctx context.Context) ([]models.Lender, error) {
	var (
		out    []models.Lender
		cursor notionapi.Cursor
	)
	for {
		resp, err := n.databases.Query(ctx, n.databaseID, &notionapi.DatabaseQueryRequest{
			StartCursor: cursor,
			PageSize:    notionPageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query notion database %s: %w", n.databaseID, err)
		}
		for _, page := range resp.Results {
			l := lenderFromProperties(page.Properties)
			if strings.TrimSpace(l.Name) == "" {
				log.Warn().Str("page_id", string(page.ID)).Msg("[NotionSource] Skipping page without a title")
				continue
			}
			out = append(out, l)
		}
		if !resp.HasMore || resp.NextCursor == "" {
			break
		}
		cursor = resp.NextCursor
	}
	log.Info().Int("count", len(out)).Msg("[NotionSource] Loaded lenders")
	return lenders.Validate(out)
}

// TestConnection checks that the token is valid.
func (n *NotionSource) TestConnection(ctx context.Context) (*integration_models.TestConnectionResult, error) {
	botUser, err := n.users.Me(ctx)
	if err != nil {
		var notionErr *notionapi.Error
		if errors.As(err, &notionErr) {
			message := fmt.Sprintf("Notion API error (%s): %s", notionErr.Code, notionErr.Message)
			if notionErr.Status == 401 {
				message = "Notion API Error: Invalid API key (Unauthorized)."
			}
			return &integration_models.TestConnectionResult{Success: false, Message: message}, nil
		}
		return nil, fmt.Errorf("failed during Notion connection test: %w", err)
	}

	var botName string
	if botUser != nil && botUser.Type == notionapi.UserTypeBot {
		botName = botUser.Name
	}
	return &integration_models.TestConnectionResult{
		Success: true,
		Message: fmt.Sprintf("Connected to Notion as bot '%s'", botName),
		Details: map[string]interface{}{"bot_name": botName, "database_id": string(n.databaseID)},
	}, nil
}

func lenderFromProperties(props notionapi.Properties) models.Lender {
	var l models.Lender
	for name, prop := range props {
		if t, ok := prop.(*notionapi.TitleProperty); ok {
			l.Name = plainText(t.Title)
			continue
		}
		switch columnKey(name) {
		case "interest_rate":
			l.InterestRate = propertyText(prop)
		case "maximum_amount":
			l.MaximumAmount = propertyText(prop)
		case "about":
			l.About = propertyText(prop)
		case "key_points":
			l.KeyPoints = propertyList(prop)
		case "currency":
			l.Currency = propertyText(prop)
		case "collateral_required":
			l.CollateralRequired = propertyBool(prop)
		case "non_collateral_option":
			l.NonCollateralOption = propertyBool(prop)
		case "us_cosigner_required":
			l.USCosignerRequired = propertyBool(prop)
		case "country":
			l.Country = propertyText(prop)
		case "university_country":
			l.UniversityCountry = propertyText(prop)
		}
	}
	return l
}

func columnKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

func plainText(rt []notionapi.RichText) string {
	var b strings.Builder
	for _, r := range rt {
		b.WriteString(r.PlainText)
	}
	return strings.TrimSpace(b.String())
}

func propertyText(prop notionapi.Property) string {
	switch p := prop.(type) {
	case *notionapi.RichTextProperty:
		return plainText(p.RichText)
	case *notionapi.TitleProperty:
		return plainText(p.Title)
	case *notionapi.NumberProperty:
		return strconv.FormatFloat(p.Number, 'f', -1, 64)
	case *notionapi.SelectProperty:
		return p.Select.Name
	case *notionapi.MultiSelectProperty:
		return strings.Join(propertyList(p), ", ")
	}
	return ""
}

// propertyList reads a multi-select column, or a text column with one entry per line.
func propertyList(prop notionapi.Property) []string {
	var out []string
	switch p := prop.(type) {
	case *notionapi.MultiSelectProperty:
		for _, o := range p.MultiSelect {
			out = append(out, o.Name)
		}
	case *notionapi.RichTextProperty:
		for _, line := range strings.Split(plainText(p.RichText), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				out = append(out, line)
			}
		}
	}
	return out
}

func propertyBool(prop notionapi.Property) bool {
	switch p := prop.(type) {
	case *notionapi.CheckboxProperty:
		return p.Checkbox
	case *notionapi.SelectProperty:
		return strings.EqualFold(p.Select.Name, "yes")
	}
	return false
}
