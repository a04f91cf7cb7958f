package enrich

import (
	"bufio"
	"context"
	"net"
	"strings"
	"time"
)

// Whois asks the IP-to-ASN whois service for the origin ASN. Step 6 of
// tier 1, invoked only when the offline ASN database had nothing. The
// protocol is a plain TCP exchange on port 43: one query line out, a header
// line and one result line back.
type Whois struct {
	server  string
	timeout time.Duration
}

func NewWhois(server string, timeout time.Duration) *Whois {
	return &Whois{server: server, timeout: timeout}
}

func (w *Whois) Enrich(ctx context.Context, ec *Ctx) error {
	if ec.MMASN != "" || ec.Hit.Address == "" {
		return nil
	}

	asn, org, err := w.lookup(ctx, ec.Hit.Address)
	if err != nil {
		return err
	}
	if asn == "" {
		return nil
	}

	ec.WhoisASN = asn
	ec.WhoisOrg = org
	ec.Hit.Stamp("_srv_whoisASN", asn)
	if org != "" {
		ec.Hit.Stamp("_srv_whoisOrg", org)
	}
	return nil
}

func (w *Whois) lookup(ctx context.Context, addr string) (asn, org string, err error) {
	var d net.Dialer
	dialCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	conn, err := d.DialContext(dialCtx, "tcp", w.server)
	if err != nil {
		return "", "", err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(w.timeout))

	if _, err := conn.Write([]byte(" -v " + addr + "\r\n")); err != nil {
		return "", "", err
	}

	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		line := sc.Text()
		// The header line starts with "AS"; results are pipe-separated with
		// the ASN in the first column and the description in the last.
		if strings.HasPrefix(line, "AS ") || strings.HasPrefix(line, "AS\t") || !strings.Contains(line, "|") {
			continue
		}
		fields := strings.Split(line, "|")
		if len(fields) < 2 {
			continue
		}
		first := strings.TrimSpace(fields[0])
		if first == "" || first == "NA" {
			continue
		}
		asn = "AS" + first
		org = strings.TrimSpace(fields[len(fields)-1])
		return asn, org, nil
	}
	return "", "", sc.Err()
}
