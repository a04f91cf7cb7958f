package enrich

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// cloudHostPatterns matches reverse-DNS hostnames of the large hosting
// providers. Compiled once at startup.
var cloudHostPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\.amazonaws\.com$`),
	regexp.MustCompile(`(?i)^ec2-[\d-]+\.`),
	regexp.MustCompile(`(?i)\.googleusercontent\.com$`),
	regexp.MustCompile(`(?i)\.bc\.googleusercontent\.com$`),
	regexp.MustCompile(`(?i)\.cloudapp\.azure\.com$`),
	regexp.MustCompile(`(?i)\.azurewebsites\.net$`),
	regexp.MustCompile(`(?i)\.digitalocean\.com$`),
	regexp.MustCompile(`(?i)\.akamaitechnologies\.com$`),
	regexp.MustCompile(`(?i)\.cloudflare\.com$`),
	regexp.MustCompile(`(?i)\.ovh\.net$`),
	regexp.MustCompile(`(?i)\.your-server\.de$`),
	regexp.MustCompile(`(?i)\.hetzner\.(com|de)$`),
	regexp.MustCompile(`(?i)\.scaleway\.com$`),
	regexp.MustCompile(`(?i)\.contaboserver\.net$`),
	regexp.MustCompile(`(?i)\.linodeusercontent\.com$`),
	regexp.MustCompile(`(?i)\.vultrusercontent\.com$`),
}

// RDNS resolves the PTR record for the hit's address. Step 3 of tier 1.
// The deadline is mandatory; a slow resolver stamps nothing.
type RDNS struct {
	client  *dns.Client
	servers []string
}

func NewRDNS(timeout time.Duration) *RDNS {
	r := &RDNS{
		client: &dns.Client{Timeout: timeout},
	}
	if cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf"); err == nil {
		for _, s := range cfg.Servers {
			r.servers = append(r.servers, s+":"+cfg.Port)
		}
	}
	if len(r.servers) == 0 {
		r.servers = []string{"1.1.1.1:53"}
	}
	return r
}

func (r *RDNS) Enrich(ctx context.Context, ec *Ctx) error {
	addr := ec.Hit.Address
	if addr == "" {
		return nil
	}
	arpa, err := dns.ReverseAddr(addr)
	if err != nil {
		return nil
	}

	msg := new(dns.Msg)
	msg.SetQuestion(arpa, dns.TypePTR)

	var resp *dns.Msg
	for _, server := range r.servers {
		resp, _, err = r.client.ExchangeContext(ctx, msg, server)
		if err == nil {
			break
		}
	}
	if err != nil || resp == nil {
		return err
	}

	for _, rr := range resp.Answer {
		ptr, ok := rr.(*dns.PTR)
		if !ok {
			continue
		}
		host := strings.TrimSuffix(ptr.Ptr, ".")
		ec.RDNS = host
		ec.Hit.Stamp("_srv_rdns", host)
		for _, re := range cloudHostPatterns {
			if re.MatchString(host) {
				ec.RDNSCloud = true
				ec.Hit.StampFlag("_srv_rdnsCloud")
				break
			}
		}
		return nil
	}
	return nil
}
