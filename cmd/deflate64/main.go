// Command deflate64 walks a ZIP archive (including Deflate64 entries that
// the standard library's archive/zip cannot open on its own) and extracts
// one entry to stdout, or lists the archive's contents. The archive can be
// a local file, memory-mapped in place, or a URL fetched a range at a time.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"strconv"

	"golang.org/x/exp/mmap"

	"github.com/jonjohnsonjr/deflate64/internal/zipfs"
	"github.com/jonjohnsonjr/deflate64/ranger"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	fset := flag.NewFlagSet("deflate64", flag.ExitOnError)
	extract := fset.String("extract", "", "extract this entry to stdout instead of listing the archive")
	url := fset.String("url", "", "fetch the archive from this URL a Range request at a time, instead of opening a local file")
	if err := fset.Parse(args); err != nil {
		return err
	}
	rest := fset.Args()

	var ra io.ReaderAt
	var size int64

	switch {
	case *url != "":
		if len(rest) != 0 {
			return fmt.Errorf("usage: deflate64 -url <archive-url> [-extract path/in/zip]")
		}
		r, n, err := openRemote(*url)
		if err != nil {
			return err
		}
		ra, size = r, n
	case len(rest) == 1:
		m, err := mmap.Open(rest[0])
		if err != nil {
			return fmt.Errorf("mmap %q: %w", rest[0], err)
		}
		defer m.Close()
		ra, size = m, int64(m.Len())
	default:
		return fmt.Errorf("usage: deflate64 [-extract path/in/zip] <archive.zip>")
	}

	fsys, err := zipfs.New(ra, size)
	if err != nil {
		return fmt.Errorf("opening zip: %w", err)
	}

	if *extract != "" {
		return extractEntry(fsys, *extract)
	}
	return list(fsys)
}

// openRemote builds an io.ReaderAt over a URL using HTTP Range requests,
// first issuing a HEAD to learn the archive's total size.
func openRemote(url string) (io.ReaderAt, int64, error) {
	req, err := http.NewRequest(http.MethodHead, url, nil)
	if err != nil {
		return nil, 0, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("HEAD %q: %w", url, err)
	}
	resp.Body.Close()

	size, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("HEAD %q: missing or invalid Content-Length: %w", url, err)
	}

	return ranger.New(context.Background(), url, http.DefaultTransport), size, nil
}

func extractEntry(fsys *zipfs.FS, name string) error {
	f, err := fsys.Open(name)
	if err != nil {
		return fmt.Errorf("opening %q: %w", name, err)
	}
	defer f.Close()

	if _, err := io.Copy(os.Stdout, f); err != nil {
		return fmt.Errorf("extracting %q: %w", name, err)
	}
	return nil
}

func list(fsys *zipfs.FS) error {
	return fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == "." {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		kind := "-"
		if d.IsDir() {
			kind = "d"
		}
		fmt.Printf("%s %10d %s\n", kind, info.Size(), p)
		return nil
	})
}
