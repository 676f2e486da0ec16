package services_test

import (
	"testing"

	"github.com/sophialabs/mimicry/internal/domain/endpoint"
	"github.com/sophialabs/mimicry/internal/domain/match"
	"github.com/sophialabs/mimicry/internal/infrastructure/services"
)

const orderJSON = `{"order":{"id":"A-1","total":42.5,"qty":3,"paid":false,"note":null,"items":[{"sku":"X"},{"sku":"Y"}],"tags":[]}}`

const orderSOAP = `<?xml version="1.0"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/" xmlns:o="urn:orders">
  <soap:Body>
    <o:GetOrder>
      <o:OrderId>A-1</o:OrderId>
      <o:Quantity>3</o:Quantity>
    </o:GetOrder>
  </soap:Body>
</soap:Envelope>`

func TestFieldExtractor_JSONBody(t *testing.T) {
	x := services.NewFieldExtractor(16)
	rc := &match.RequestContext{Body: []byte(orderJSON)}

	tests := []struct {
		path    string
		want    string
		present bool
	}{
		{"$.order.id", "A-1", true},
		{"order.id", "A-1", true},
		{"$.order.total", "42.5", true},
		{"$.order.qty", "3", true},
		{"$.order.paid", "false", true},
		{"$.order.note", "", true},
		{"$.order.items[1].sku", "Y", true},
		{"$.order.items[0]", `{"sku":"X"}`, true},
		{"$.order.missing", "", false},
		{"$.order.tags[*]", "", false},
		{"$..[", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := x.Extract(match.SourceBody, tt.path, rc, endpoint.ProtocolREST, nil)
			if ok != tt.present || got != tt.want {
				t.Errorf("Extract(%q) = (%q, %v), want (%q, %v)", tt.path, got, ok, tt.want, tt.present)
			}
		})
	}
}

func TestFieldExtractor_MalformedJSONIsAbsent(t *testing.T) {
	x := services.NewFieldExtractor(16)
	for _, body := range []string{"", "{not json", "<xml/>"} {
		rc := &match.RequestContext{Body: []byte(body)}
		if v, ok := x.Extract(match.SourceBody, "$.a", rc, endpoint.ProtocolREST, nil); ok {
			t.Errorf("body %q: expected absent, got %q", body, v)
		}
	}
}

func TestFieldExtractor_SOAPBody(t *testing.T) {
	x := services.NewFieldExtractor(16)
	rc := &match.RequestContext{Body: []byte(orderSOAP)}

	tests := []struct {
		path    string
		want    string
		present bool
	}{
		{"//*[local-name()='OrderId']", "A-1", true},
		{"/Envelope/Body/GetOrder/Quantity", "3", true},
		{"count(//*[local-name()='OrderId'])", "1", true},
		{"string(//*[local-name()='Quantity'])", "3", true},
		{"//*[local-name()='Missing']", "", false},
		{"//[", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := x.Extract(match.SourceBody, tt.path, rc, endpoint.ProtocolSOAP, nil)
			if ok != tt.present || got != tt.want {
				t.Errorf("Extract(%q) = (%q, %v), want (%q, %v)", tt.path, got, ok, tt.want, tt.present)
			}
		})
	}
}

func TestFieldExtractor_MalformedXMLIsAbsent(t *testing.T) {
	x := services.NewFieldExtractor(16)
	rc := &match.RequestContext{Body: []byte(`{"json":true}`)}
	if v, ok := x.Extract(match.SourceBody, "//json", rc, endpoint.ProtocolSOAP, nil); ok {
		t.Errorf("expected absent, got %q", v)
	}
}

func TestFieldExtractor_HeaderQueryPath(t *testing.T) {
	x := services.NewFieldExtractor(16)
	rc := &match.RequestContext{
		Headers: map[string]string{"X-Tier": "vip", "X-Empty": ""},
		Query:   map[string]string{"status": "open"},
	}
	params := match.PathParams{"orderId": "A-1"}

	tests := []struct {
		name    string
		source  match.SourceType
		field   string
		want    string
		present bool
	}{
		{"header any case", match.SourceHeader, "x-tier", "vip", true},
		{"empty header is present", match.SourceHeader, "X-Empty", "", true},
		{"missing header", match.SourceHeader, "X-Missing", "", false},
		{"query any case", match.SourceQuery, "STATUS", "open", true},
		{"missing query", match.SourceQuery, "page", "", false},
		{"path with braces", match.SourcePath, "{orderId}", "A-1", true},
		{"path bare any case", match.SourcePath, "orderid", "A-1", true},
		{"missing path param", match.SourcePath, "{id}", "", false},
		{"metadata reserved", match.SourceMetadata, "anything", "", false},
		{"unknown source", match.SourceType("Cookie"), "session", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := x.Extract(tt.source, tt.field, rc, endpoint.ProtocolREST, params)
			if ok != tt.present || got != tt.want {
				t.Errorf("Extract = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.present)
			}
		})
	}
}
