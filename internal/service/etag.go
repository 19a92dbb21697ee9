package service

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/zzenonn/snowstore/internal/errors"
)

// chunkUnit is the granularity upload clients round their part sizes to.
const chunkUnit int64 = 1048576 // 1 MiB

// knownPartSizes are the default part sizes of common upload clients
// (aws cli / boto3, s3cmd).
var knownPartSizes = []int64{8388608, 15728640}

// ETagVerifier reconstructs and compares content digests for both plain
// and multipart-style uploads. Multipart verification is best effort: the
// uploader's part size is not recorded anywhere, so a short list of known
// sizes is tried plus one derived from the file size. A file uploaded
// with an unlisted part size reports invalid even when intact, which is
// why a failed verification only ever blocks deletion, never triggers it.
type ETagVerifier struct {
	fs afero.Fs
}

// NewETagVerifier creates a verifier reading files through fs.
func NewETagVerifier(fs afero.Fs) *ETagVerifier {
	return &ETagVerifier{fs: fs}
}

// IsValid reports whether the local file's content reproduces remoteETag.
func (v *ETagVerifier) IsValid(localPath, remoteETag string) (bool, error) {
	remoteETag = strings.Trim(remoteETag, "\"")

	digest, partCountStr, isMultipart := strings.Cut(remoteETag, "-")
	if !isMultipart {
		calculated, err := v.wholeFileDigest(localPath)
		if err != nil {
			return false, err
		}
		return calculated == digest, nil
	}

	numParts, err := strconv.Atoi(partCountStr)
	if err != nil || numParts <= 0 {
		return false, errors.ErrMalformedETag
	}

	info, err := v.fs.Stat(localPath)
	if err != nil {
		return false, err
	}
	fileSize := info.Size()

	for _, partSize := range v.candidatePartSizes(fileSize, numParts) {
		calculated, err := v.multipartETag(localPath, partSize)
		if err != nil {
			return false, err
		}
		log.Debugf("etag from store: %s, calculated: %s (part size %d)", remoteETag, calculated, partSize)
		if calculated == remoteETag {
			return true, nil
		}
	}
	return false, nil
}

// candidatePartSizes returns the part sizes that could plausibly have
// produced numParts parts from a file of fileSize bytes.
func (v *ETagVerifier) candidatePartSizes(fileSize int64, numParts int) []int64 {
	candidates := append([]int64{}, knownPartSizes...)
	candidates = append(candidates, factorOfChunkUnit(fileSize, numParts))

	var plausible []int64
	for _, partSize := range candidates {
		// ceiling division: partSize must cover the file in numParts chunks
		if partSize < fileSize && (fileSize+partSize-1)/partSize <= int64(numParts) {
			plausible = append(plausible, partSize)
		}
	}
	// a single-part multipart upload has one chunk covering the whole
	// file; no smaller part size can reproduce it
	if numParts == 1 {
		plausible = append(plausible, fileSize)
	}
	return plausible
}

// factorOfChunkUnit derives fileSize/numParts rounded up to the next
// multiple of the chunk unit. Used by many clients to upload large files.
func factorOfChunkUnit(fileSize int64, numParts int) int64 {
	x := fileSize / int64(numParts)
	return x + chunkUnit - x%chunkUnit
}

func (v *ETagVerifier) wholeFileDigest(localPath string) (string, error) {
	file, err := v.fs.Open(localPath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// multipartETag digests the file in partSize chunks, concatenates the raw
// chunk digests, digests the concatenation, and appends the part count.
func (v *ETagVerifier) multipartETag(localPath string, partSize int64) (string, error) {
	file, err := v.fs.Open(localPath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	var concatenated []byte
	parts := 0
	for {
		chunk := make([]byte, partSize)
		n, err := io.ReadFull(file, chunk)
		if n > 0 {
			sum := md5.Sum(chunk[:n])
			concatenated = append(concatenated, sum[:]...)
			parts++
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return "", err
		}
	}

	final := md5.Sum(concatenated)
	return hex.EncodeToString(final[:]) + "-" + strconv.Itoa(parts), nil
}
