package fetcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ResolveLayer turns a layer source into a local .shp path. Sources may be
// a plain shapefile, a zipped shapefile or an ftp:// URL to either. Remote
// and zipped layers are unpacked under workDir.
func ResolveLayer(ctx context.Context, source, workDir string, ftpFetcher *FTPFetcher) (string, error) {
	local := source
	if strings.HasPrefix(strings.ToLower(source), "ftp://") {
		if ftpFetcher == nil {
			return "", eris.New("fetcher: ftp source given without an ftp fetcher")
		}
		name, err := remoteBase(source)
		if err != nil {
			return "", err
		}
		if err := os.MkdirAll(workDir, 0o755); err != nil {
			return "", eris.Wrap(err, "fetcher: create work dir")
		}
		local = filepath.Join(workDir, name)
		n, err := ftpFetcher.DownloadToFile(ctx, source, local)
		if err != nil {
			return "", err
		}
		zap.L().Info("fetcher: downloaded layer", zap.String("source", source), zap.Int64("bytes", n))
	}

	switch strings.ToLower(filepath.Ext(local)) {
	case ".zip":
		dest := filepath.Join(workDir, strings.TrimSuffix(filepath.Base(local), filepath.Ext(local)))
		return ExtractShapefile(local, dest)
	case ".shp":
		if _, err := os.Stat(local); err != nil {
			return "", eris.Wrapf(err, "fetcher: stat %s", local)
		}
		return local, nil
	default:
		return "", eris.Errorf("fetcher: unsupported layer source %q (want .shp, .zip or ftp://)", source)
	}
}
