package skemac

import (
	"net/mail"
	"net/netip"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/reoring/skemac/codegen"
	"github.com/reoring/skemac/rt"
	"golang.org/x/net/idna"
)

// Format checks values of one format. Check receives values of Type
// only; an empty Type checks every value.
type Format = rt.Format

var (
	dateRe     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timeRe     = regexp.MustCompile(`(?i)^(\d{2}):(\d{2}):(\d{2})(\.\d+)?(z|[+-]\d{2}(?::?\d{2})?)$`)
	hostnameRe = regexp.MustCompile(`(?i)^[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?(?:\.[a-z0-9](?:[-0-9a-z]{0,61}[0-9a-z])?)*$`)
	pointerRe  = regexp.MustCompile(`^(?:/(?:[^~/]|~0|~1)*)*$`)
	idnaLookup = idna.New(idna.MapForLookup(), idna.ValidateLabels(true), idna.BidiRule())
)

var builtinFormats = []*Format{
	{Name: "date", Type: "string", Check: str(isDate)},
	{Name: "time", Type: "string", Check: str(isTime)},
	{Name: "date-time", Type: "string", Check: str(isDateTime)},
	{Name: "email", Type: "string", Check: str(isEmail)},
	{Name: "hostname", Type: "string", Check: str(isHostname)},
	{Name: "idn-hostname", Type: "string", Check: str(isIDNHostname)},
	{Name: "ipv4", Type: "string", Check: str(isIPv4)},
	{Name: "ipv6", Type: "string", Check: str(isIPv6)},
	{Name: "uri", Type: "string", Check: str(isURI)},
	{Name: "uri-reference", Type: "string", Check: str(isURIReference)},
	{Name: "uuid", Type: "string", Check: str(isUUID)},
	{Name: "regex", Type: "string", Check: str(isRegex)},
	{Name: "json-pointer", Type: "string", Check: str(pointerRe.MatchString)},
}

func init() {
	for _, f := range builtinFormats {
		rt.RegisterFormat(f)
	}
}

func builtinFormatNames() []string {
	names := make([]string, len(builtinFormats))
	for i, f := range builtinFormats {
		names[i] = f.Name
	}
	return names
}

func str(fn func(string) bool) func(any) bool {
	return func(v any) bool {
		s, ok := v.(string)
		return ok && fn(s)
	}
}

func isDate(s string) bool {
	if !dateRe.MatchString(s) {
		return false
	}
	_, err := time.Parse(time.DateOnly, s)
	return err == nil
}

func isTime(s string) bool {
	m := timeRe.FindStringSubmatch(s)
	if m == nil {
		return false
	}
	hh, mm, ss := atoi2(m[1]), atoi2(m[2]), atoi2(m[3])
	// leap seconds are accepted at 23:59:60 in any zone
	return hh <= 23 && mm <= 59 && (ss <= 59 || ss == 60)
}

func atoi2(s string) int { return int(s[0]-'0')*10 + int(s[1]-'0') }

func isDateTime(s string) bool {
	i := strings.IndexAny(s, "tT ")
	return i > 0 && isDate(s[:i]) && isTime(s[i+1:])
}

func isEmail(s string) bool {
	a, err := mail.ParseAddress(s)
	return err == nil && a.Address == s && a.Name == ""
}

func isHostname(s string) bool {
	return len(s) <= 253 && hostnameRe.MatchString(s)
}

func isIDNHostname(s string) bool {
	ascii, err := idnaLookup.ToASCII(s)
	return err == nil && isHostname(ascii)
}

func isIPv4(s string) bool {
	a, err := netip.ParseAddr(s)
	return err == nil && a.Is4()
}

func isIPv6(s string) bool {
	a, err := netip.ParseAddr(s)
	return err == nil && a.Is6() && a.Zone() == ""
}

func isURI(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != ""
}

func isURIReference(s string) bool {
	_, err := url.Parse(s)
	return err == nil
}

func isUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

func isRegex(s string) bool {
	_, err := regexp.Compile(s)
	return err == nil
}

func formatKeyword() *KeywordDefinition {
	return &KeywordDefinition{Keyword: "format", SchemaType: []string{"string"}, Code: formatCode}
}

func formatCode(k *KeywordCxt) error {
	it := k.It
	c := it.c
	if !c.opts.ValidateFormats {
		return nil
	}
	name := k.Schema.(string)
	f := c.formats[name]
	if f == nil {
		return it.strict("unknown format \""+name+"\" ignored in schema at path \""+it.errSchemaPath+"\"", "format")
	}
	var code codegen.Expr
	if builtin, ok := rt.LookupFormat(name); ok && builtin == f {
		code = codegen.F("format", codegen.L(name))
	}
	fn := k.Value("format", name, f, code)
	k.SetParams(map[string]codegen.Expr{"format": codegen.L(name)}, false)
	k.Pass(codegen.F("checkFormat", fn, k.Data), nil)
	return nil
}
