package secrets

import (
	"strings"

	"github.com/grafana/regexp"
)

// Detector is one secret heuristic. Match receives the variable name and
// its value and reports whether the heuristic fires.
type Detector struct {
	Name  string
	Match func(key, value string) bool
}

var (
	keywordDenylist = regexp.MustCompile(`(?i)(api_?key|auth_?key|service_?key|account_?key|db_?key|database_?key|priv_?key|private_?key|client_?key|db_?pass|database_?pass|key_?pass|password|passwd|pwd|secret|contraseña|contrasena)`)

	basicAuth       = regexp.MustCompile(`://[^:/?#\[\]@!$&'()*+,;=\s]+:([^:/?#\[\]@!$&'()*+,;=\s]+)@`)
	awsAccessKey    = regexp.MustCompile(`(?:A3T[A-Z0-9]|ABIA|ACCA|AKIA|ASIA)[0-9A-Z]{16}`)
	azureStorageKey = regexp.MustCompile(`AccountKey=[a-zA-Z0-9+/=]{88}`)
	githubToken     = regexp.MustCompile(`(?:ghp|gho|ghu|ghs|ghr)_[A-Za-z0-9_]{36}`)
	slackToken      = regexp.MustCompile(`(?i)xox[aboprs]-(?:\d+-)+[a-z0-9]+|https://hooks\.slack\.com/services/T[a-zA-Z0-9_]+/B[a-zA-Z0-9_]+/[a-zA-Z0-9_]+`)
	stripeKey       = regexp.MustCompile(`[rs]k_live_[0-9a-zA-Z]{24}`)
	telegramToken   = regexp.MustCompile(`^\d{8,10}:[0-9A-Za-z_-]{35}$`)
	twilioKey       = regexp.MustCompile(`(?:AC|SK)[a-z0-9]{32}`)
	sendgridKey     = regexp.MustCompile(`SG\.[a-zA-Z0-9_-]{22}\.[a-zA-Z0-9_-]{43}`)
	mailchimpKey    = regexp.MustCompile(`[0-9a-z]{32}-us[0-9]{1,2}`)
	jwt             = regexp.MustCompile(`eyJ[A-Za-z0-9_-]+={0,2}\.eyJ[A-Za-z0-9_-]+={0,2}\.[A-Za-z0-9_-]*={0,2}`)
	privateKey      = regexp.MustCompile(`BEGIN (?:DSA |EC |OPENSSH |PGP |RSA |ENCRYPTED )?PRIVATE KEY`)
)

// DefaultDetectors returns the built-in heuristics in reporting order.
func DefaultDetectors() []Detector {
	return []Detector{
		{Name: "Secret Keyword", Match: matchKeyword},
		{Name: "Basic Auth Credentials", Match: valueRegexp(basicAuth)},
		{Name: "AWS Access Key", Match: valueRegexp(awsAccessKey)},
		{Name: "Azure Storage Account access key", Match: valueRegexp(azureStorageKey)},
		{Name: "GitHub Token", Match: valueRegexp(githubToken)},
		{Name: "Slack Token", Match: valueRegexp(slackToken)},
		{Name: "Stripe Access Key", Match: valueRegexp(stripeKey)},
		{Name: "Telegram Bot Token", Match: valueRegexp(telegramToken)},
		{Name: "Twilio API Key", Match: valueRegexp(twilioKey)},
		{Name: "SendGrid API Key", Match: valueRegexp(sendgridKey)},
		{Name: "Mailchimp Access Key", Match: valueRegexp(mailchimpKey)},
		{Name: "JSON Web Token", Match: valueRegexp(jwt)},
		{Name: "Private Key", Match: valueRegexp(privateKey)},
		{Name: "Base64 High Entropy String", Match: highEntropy(base64Charset, base64Limit)},
		{Name: "Hex High Entropy String", Match: highEntropy(hexCharset, hexLimit)},
	}
}

// matchKeyword fires on a sensitive variable name holding a non-empty value.
func matchKeyword(key, value string) bool {
	return strings.TrimSpace(value) != "" && keywordDenylist.MatchString(key)
}

func valueRegexp(re *regexp.Regexp) func(string, string) bool {
	return func(_, value string) bool {
		return re.MatchString(value)
	}
}
