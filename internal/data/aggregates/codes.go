package aggregates

import (
	"strings"
	"time"

	"github.com/yungbote/lotline-backend/internal/data/repos"
	"github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
)

// lotSeqPrefix keys the counter that orders lot registration.
const lotSeqPrefix = "lot#"

// resolveSite picks the caller's site, falling back to the policy default.
func resolveSite(site, policySite string) (string, error) {
	site = strings.ToUpper(strings.TrimSpace(site))
	if site == "" {
		site = policySite
	}
	if site == "" {
		site = production.DefaultSiteCode
	}
	if !production.ValidSiteCode(site) {
		return "", ValidationError("site code " + site + " must be 4 uppercase letters")
	}
	return site, nil
}

// nextCode draws the next storage-sequenced code for (type, day, site).
func nextCode(dbc dbctx.Context, seqs repos.CodeSequenceRepo, codeType, site string, now time.Time) (string, error) {
	prefix := production.SequencePrefix(codeType, now, site)
	n, err := seqs.Next(dbc, prefix)
	if err != nil {
		return "", err
	}
	if n > production.MaxCodeSeq {
		return "", ConflictError("code sequence exhausted for " + prefix)
	}
	return production.FormatCode(codeType, now, site, int(n)), nil
}

// observeCode keeps the generator ahead of an explicitly supplied code.
func observeCode(dbc dbctx.Context, seqs repos.CodeSequenceRepo, c production.Code) error {
	return seqs.Observe(dbc, production.SequencePrefix(c.Type, c.Date, c.Site), int64(c.Seq))
}
