package nexus

import "github.com/sledctl/sledctl/apierr"

func errNoSleds() error {
	return apierr.Unavailable("no sleds are registered")
}
