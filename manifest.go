package gdalfade

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	"github.com/wgdzlh/gdalfade/log"
	"github.com/wgdzlh/gdalfade/utils"
	"github.com/wgdzlh/gdalfade/vector"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"
)

const manifestVersion = 1

// Fingerprint 为阶段参数及上游指纹的BLAKE3摘要
type Fingerprint [32]byte

func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:8])
}

type StageRecord struct {
	Fingerprint Fingerprint      `cbor:"1,keyasint"`
	Artifacts   []string         `cbor:"2,keyasint"`
	Stats       map[string]int64 `cbor:"3,keyasint,omitempty"`
}

// Manifest 记录中间目录中各阶段产物的指纹
type Manifest struct {
	Version int                    `cbor:"1,keyasint"`
	Stages  map[string]StageRecord `cbor:"2,keyasint"`

	path string
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	// 核心确定性编码：相同数据总是得到相同字节
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic("manifest: cbor encoder init failed: " + err.Error())
	}
	if decMode, err = (cbor.DecOptions{}).DecMode(); err != nil {
		panic("manifest: cbor decoder init failed: " + err.Error())
	}
}

// 读取中间目录中的清单，不存在或无法解析时返回空清单
func LoadManifest(dir string) (m *Manifest, err error) {
	m = &Manifest{
		Version: manifestVersion,
		Stages:  map[string]StageRecord{},
		path:    filepath.Join(dir, MANIFEST_FILE),
	}
	data, err := os.ReadFile(m.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = nil
		} else {
			err = fmt.Errorf("%w: read manifest: %v", ErrStorage, err)
		}
		return
	}
	var disk Manifest
	if e := decMode.Unmarshal(data, &disk); e != nil || disk.Version != manifestVersion {
		log.Warn("discard unreadable manifest", zap.String("path", m.path), zap.Int("version", disk.Version), zap.Error(e))
		return
	}
	if disk.Stages != nil {
		m.Stages = disk.Stages
	}
	return
}

// 指纹一致时返回该阶段记录
func (m *Manifest) Lookup(stage string, fp Fingerprint) (rec StageRecord, ok bool) {
	rec, ok = m.Stages[stage]
	ok = ok && rec.Fingerprint == fp
	return
}

// 记录阶段结果并原子地写回文件
func (m *Manifest) Record(stage string, rec StageRecord) error {
	m.Stages[stage] = rec
	return m.Save()
}

func (m *Manifest) Save() (err error) {
	data, err := encMode.Marshal(m)
	if err != nil {
		return
	}
	if err = utils.WriteFileAtomic(m.path, data); err != nil {
		err = fmt.Errorf("%w: write manifest: %v", ErrStorage, err)
	}
	return
}

type fingerprintInput struct {
	Stage    string
	Params   any
	Upstream []Fingerprint
}

// 阶段指纹：确定性CBOR编码后取BLAKE3
func fingerprint(stage string, params any, upstream ...Fingerprint) (fp Fingerprint, err error) {
	data, err := encMode.Marshal(fingerprintInput{Stage: stage, Params: params, Upstream: upstream})
	if err != nil {
		err = fmt.Errorf("fingerprint %s: %w", stage, err)
		return
	}
	fp = blake3.Sum256(data)
	return
}

// 线坐标的指纹，人工编辑后随之变化
func linesFingerprint(ls []vector.LineString) (fp Fingerprint) {
	h := blake3.New()
	buf := make([]byte, 0, 16*64)
	for _, l := range ls {
		buf = binary.LittleEndian.AppendUint64(buf[:0], uint64(len(l)))
		h.Write(buf)
		for _, v := range l {
			buf = binary.LittleEndian.AppendUint64(buf[:0], math.Float64bits(v.X))
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v.Y))
			h.Write(buf)
		}
	}
	copy(fp[:], h.Sum(nil))
	return
}
