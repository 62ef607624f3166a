package boundary

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hre-border/internal/model"
)

// checkPRJ compares the coordinate system named in the shapefile's .prj
// sidecar with srid. A missing or unreadable sidecar is logged and
// accepted. Only UTM zones and EPSG:4326 are recognized.
func checkPRJ(shpPath string, srid model.SRID) error {
	log := zap.L().With(zap.String("component", "boundary"))

	base := strings.TrimSuffix(shpPath, filepath.Ext(shpPath))
	var data []byte
	var err error
	for _, ext := range []string{".prj", ".PRJ"} {
		data, err = os.ReadFile(base + ext)
		if err == nil {
			break
		}
	}
	if err != nil {
		log.Warn("shapefile has no .prj, trusting configured srid",
			zap.String("path", shpPath),
			zap.Int("srid", int(srid)),
		)
		return nil
	}

	projected, name := prjName(string(data))
	if name == "" {
		log.Warn("unparsable .prj, trusting configured srid", zap.String("path", shpPath))
		return nil
	}
	ok, known := prjMatches(projected, name, srid)
	if !known {
		log.Debug("no .prj check for srid", zap.Int("srid", int(srid)), zap.String("prj", name))
		return nil
	}
	if !ok {
		return eris.Wrapf(model.ErrCRSMismatch, "boundary: %s .prj is %q, expected %s", shpPath, name, srid)
	}
	return nil
}

// prjName returns the name of the outermost PROJCS or GEOGCS of an ESRI
// WKT string and whether it is projected.
func prjName(wkt string) (projected bool, name string) {
	wkt = strings.TrimSpace(wkt)
	upper := strings.ToUpper(wkt)
	switch {
	case strings.HasPrefix(upper, "PROJCS["):
		projected = true
	case strings.HasPrefix(upper, "GEOGCS["):
	default:
		return false, ""
	}
	rest := wkt[strings.IndexByte(wkt, '[')+1:]
	if !strings.HasPrefix(rest, `"`) {
		return false, ""
	}
	end := strings.IndexByte(rest[1:], '"')
	if end < 0 {
		return false, ""
	}
	return projected, rest[1 : end+1]
}

// prjMatches reports whether a .prj name fits srid. known is false when
// srid is neither a WGS 84 or ETRS89 UTM zone nor EPSG:4326.
func prjMatches(projected bool, name string, srid model.SRID) (ok, known bool) {
	words := normalizeCRSName(name)
	code := int(srid)
	switch {
	case code == 4326:
		return !projected && strings.Contains(words, "wgs") && strings.Contains(words, "84"), true
	case (code > 32600 && code <= 32660) || (code > 25800 && code <= 25860):
		zone := "utm zone " + strconv.Itoa(code%100) + "n"
		return projected && strings.Contains(words, zone), true
	}
	return false, false
}

// normalizeCRSName lower-cases name and collapses every run of
// punctuation into one space, so "ETRS_1989_UTM_Zone_32N" and
// "ETRS89 / UTM zone 32N" both contain "utm zone 32n".
func normalizeCRSName(name string) string {
	var b strings.Builder
	space := true
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}
