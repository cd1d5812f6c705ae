package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-storage-proofs/apis/snark"
	"github.com/filecoin-project/go-storage-proofs/sealing"
	"github.com/filecoin-project/go-storage-proofs/types"
)

var sealCmd = &cli.Command{
	Name:      "seal",
	Usage:     "seal a file (or a committed capacity sector) and wait until it is proving",
	ArgsUsage: "[file]",
	Action: func(cctx *cli.Context) error {
		w := newWatcher(64)
		r, err := openRepo(cctx, w.notify)
		if err != nil {
			return err
		}
		defer r.Close(cctx) //nolint:errcheck

		if err := r.miner.Run(cctx.Context); err != nil {
			return err
		}

		var num abi.SectorNumber
		if cctx.Args().Present() {
			f, err := os.Open(cctx.Args().First())
			if err != nil {
				return err
			}
			defer f.Close() //nolint:errcheck
			num, err = r.miner.SealSector(cctx.Context, f)
			if err != nil {
				return err
			}
		} else {
			if num, err = r.miner.PledgeSector(cctx.Context); err != nil {
				return err
			}
		}

		if _, err := w.waitSealed(cctx.Context, num, time.Second, r.miner.GetSectorInfo); err != nil {
			return err
		}
		return printSector(r, num)
	},
}

func printSector(r *repo, num abi.SectorNumber) error {
	info, err := r.miner.GetSectorInfo(num)
	if err != nil {
		return err
	}
	commD, err := info.CommD.DataCID()
	if err != nil {
		return err
	}
	commR, err := info.CommR.ReplicaCID()
	if err != nil {
		return err
	}
	fmt.Printf("sector %d\n  state: %s\n  commD: %s\n  commR: %s\n", num, sealing.SectorStates[info.State], commD, commR)
	return nil
}

var listCmd = &cli.Command{
	Name:  "list",
	Usage: "list sectors",
	Action: func(cctx *cli.Context) error {
		r, err := openRepo(cctx, nil)
		if err != nil {
			return err
		}
		defer r.Close(cctx) //nolint:errcheck

		sectors, err := r.miner.ListSectors()
		if err != nil {
			return err
		}
		for _, s := range sectors {
			fmt.Printf("%d\t%s\t%s\n", s.SectorNum, sealing.SectorStates[s.State], s.CommR)
		}
		return nil
	},
}

var verifyCmd = &cli.Command{
	Name:      "verify",
	Usage:     "verify the seal proof of a sector",
	ArgsUsage: "<sector>",
	Action: func(cctx *cli.Context) error {
		nums, err := parseSectors(cctx.Args().First())
		if err != nil {
			return err
		}

		r, err := openRepo(cctx, nil)
		if err != nil {
			return err
		}
		defer r.Close(cctx) //nolint:errcheck

		for _, num := range nums {
			ok, err := r.miner.VerifySector(cctx.Context, num)
			if err != nil {
				return err
			}
			fmt.Printf("sector %d: valid=%t\n", num, ok)
		}
		return nil
	},
}

var unsealCmd = &cli.Command{
	Name:      "unseal",
	Usage:     "write the raw bytes of a node range of a sealed sector to stdout",
	ArgsUsage: "<sector>",
	Flags: []cli.Flag{
		&cli.Uint64Flag{Name: "offset", Usage: "first node, a multiple of 4"},
		&cli.Uint64Flag{Name: "count", Usage: "node count, a multiple of 4", Value: 4},
	},
	Action: func(cctx *cli.Context) error {
		num, err := strconv.ParseUint(cctx.Args().First(), 10, 64)
		if err != nil {
			return xerrors.Errorf("parsing sector number: %w", err)
		}

		r, err := openRepo(cctx, nil)
		if err != nil {
			return err
		}
		defer r.Close(cctx) //nolint:errcheck

		out, err := r.miner.UnsealRange(cctx.Context, abi.SectorNumber(num), cctx.Uint64("offset"), cctx.Uint64("count"))
		if err != nil {
			return err
		}
		_, err = io.Copy(os.Stdout, bytes.NewReader(out))
		return err
	},
}

var randomnessFlag = &cli.StringFlag{
	Name:     "randomness",
	Usage:    "hex encoded 32 byte challenge randomness",
	Required: true,
}

var challengesCmd = &cli.Command{
	Name:      "challenges",
	Usage:     "print the window post challenges of sectors",
	ArgsUsage: "<sector,...>",
	Flags:     []cli.Flag{randomnessFlag},
	Action: func(cctx *cli.Context) error {
		randomness, err := parseRandomness(cctx.String("randomness"))
		if err != nil {
			return err
		}
		nums, err := parseSectors(cctx.Args().First())
		if err != nil {
			return err
		}

		r, err := openRepo(cctx, nil)
		if err != nil {
			return err
		}
		defer r.Close(cctx) //nolint:errcheck

		ch, err := r.miner.GenerateWindowPoStChallenges(randomness, nums)
		if err != nil {
			return err
		}
		for _, num := range nums {
			fmt.Printf("%d\t%v\n", num, ch.Sectors[num])
		}
		return nil
	},
}

var proveCmd = &cli.Command{
	Name:      "prove",
	Usage:     "generate and verify a window post over proving sectors",
	ArgsUsage: "<sector,...>",
	Flags: []cli.Flag{
		randomnessFlag,
		&cli.StringFlag{Name: "out", Usage: "write the proof to this file"},
	},
	Action: func(cctx *cli.Context) error {
		randomness, err := parseRandomness(cctx.String("randomness"))
		if err != nil {
			return err
		}
		nums, err := parseSectors(cctx.Args().First())
		if err != nil {
			return err
		}

		r, err := openRepo(cctx, nil)
		if err != nil {
			return err
		}
		defer r.Close(cctx) //nolint:errcheck

		pub, proof, err := r.miner.GenerateWindowPoSt(cctx.Context, randomness, nums)
		if err != nil {
			return err
		}

		ok, err := r.miner.VerifyPoSt(cctx.Context, types.PoStTypeWindow, snark.WindowPoStVerifyInfo{
			Randomness: randomness,
			Prover:     r.prover,
			Sectors:    pub,
			Proof:      proof,
		})
		if err != nil {
			return err
		}
		fmt.Printf("window post over %d sectors: %d bytes, valid=%t\n", len(pub), len(proof), ok)

		if out := cctx.String("out"); out != "" {
			return os.WriteFile(out, proof, 0644)
		}
		return nil
	},
}

func parseRandomness(s string) (types.ChallengeSeed, error) {
	var out types.ChallengeSeed
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, xerrors.Errorf("parsing randomness: %w", err)
	}
	if len(b) != len(out) {
		return out, xerrors.Errorf("randomness must be %d bytes, got %d", len(out), len(b))
	}
	copy(out[:], b)
	return out, nil
}

func parseSectors(s string) ([]abi.SectorNumber, error) {
	if s == "" {
		return nil, xerrors.New("no sectors given")
	}
	var out []abi.SectorNumber
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.ParseUint(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, xerrors.Errorf("parsing sector %q: %w", part, err)
		}
		out = append(out, abi.SectorNumber(n))
	}
	return out, nil
}
