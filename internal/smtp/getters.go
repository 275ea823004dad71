package smtp

import (
	"strings"

	log "github.com/sirupsen/logrus"
)

// ttl cached reverse lookup of a peer ip, empty when there is no name
func (s *Server) getRemoteHost(ip string) string {
	if !s.cfg.ReverseDNS || len(ip) == 0 {
		return ""
	}

	if s.cache != nil {
		if host, ok := s.cache.Get("rdns", ip); ok {
			return host.(string)
		}
	}

	var host string
	names, err := s.lookupAddr(ip)
	if err != nil {
		log.Debugf("LookupAddr '%s': %s", ip, err)
	} else if len(names) > 0 {
		host = strings.TrimSuffix(names[0], ".")
	}

	// misses are cached too, a peer without a PTR record stays without one
	if s.cache != nil {
		s.cache.Set("rdns", ip, host)
	}

	return host
}
