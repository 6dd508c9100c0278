// mdltool converts between glTF scenes and packed-binary MDL models.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/xivdev/Xande-sub000/internal/config"
	"github.com/xivdev/Xande-sub000/internal/convert"
	"github.com/xivdev/Xande-sub000/internal/logger"
	"github.com/xivdev/Xande-sub000/pkg/mdl"
	"github.com/xivdev/Xande-sub000/pkg/scene"
)

func main() {
	config.ParseFlags()
	args := config.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	command := args[0]
	args = args[1:]

	switch command {
	case "build", "b":
		cmdBuild(cfg, args)
	case "extract", "x":
		cmdExtract(cfg, args)
	case "info":
		cmdInfo(args)
	case "dump":
		cmdDump(args)
	case "config":
		cmdConfig(cfg, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	logger.Sync()
}

func printUsage() {
	fmt.Println(`mdltool - packed-binary model converter

Usage:
  mdltool [global options] <command> [options]

Global options:
  -config <file>    Config file (.yaml or .toml)
  -debug            Enable debug logging
  -strict           Fail on structural violations
  -skeleton <file>  YAML skeleton used to order bone tables
  -template <file>  Model whose boxes, element ids and flags are kept
  -workers <n>      Concurrent submesh encoders

Commands:
  build <scene.gltf|glb> <out.mdl>   Build a model from a glTF scene
  extract <in.mdl> <out.gltf|glb>    Export a model as a glTF scene
  info <in.mdl>                      Show model summary
  dump <in.mdl>                      Print declarations and tables
  config [path]                      Write the effective config

Examples:
  mdltool -skeleton skl_c0101b0001.yaml build top.glb c0101e0001_top.mdl
  mdltool -template c0101e0001_top.mdl build top.glb out.mdl
  mdltool extract c0101e0001_top.mdl top.glb
  mdltool dump -section shapes c0101e0001_top.mdl`)
}

// fail reports err on stderr and exits.
func fail(err error) {
	logger.Sync()
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func cmdBuild(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	noTangents := fs.Bool("no-tangents", false, "Do not generate missing tangents")
	fs.Parse(args)

	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "Usage: mdltool build <scene.gltf|glb> <out.mdl>")
		os.Exit(1)
	}

	log := logger.Named("build")
	opts, err := buildOptions(cfg, log)
	if err != nil {
		fail(err)
	}
	if *noTangents {
		opts.GenerateTangents = false
	}

	sc, err := scene.LoadGLTF(fs.Arg(0))
	if err != nil {
		fail(err)
	}

	model, report, err := convert.Build(sc, opts)
	if err != nil {
		fail(err)
	}
	if err := model.WriteFile(fs.Arg(1)); err != nil {
		fail(err)
	}

	log.Info("model written",
		zap.String("path", fs.Arg(1)),
		zap.Uint32("bytes", model.FileSize()),
		zap.Int("violations", report.Len()),
	)
	fmt.Printf("Built: %s (%d bytes, %d meshes, %d violations)\n",
		fs.Arg(1), model.FileSize(), len(model.Meshes), report.Len())
}

func cmdExtract(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "Usage: mdltool extract <in.mdl> <out.gltf|glb>")
		os.Exit(1)
	}

	model, err := mdl.ParseFile(fs.Arg(0))
	if err != nil {
		fail(err)
	}
	skel, err := extractSkeleton(cfg)
	if err != nil {
		fail(err)
	}
	sc, err := convert.Extract(model, skel)
	if err != nil {
		fail(err)
	}
	if err := scene.SaveGLTF(sc, fs.Arg(1)); err != nil {
		fail(err)
	}

	logger.Named("extract").Info("scene written",
		zap.String("path", fs.Arg(1)),
		zap.Int("meshes", len(sc.Meshes)),
		zap.Int("bones", sc.Skeleton.Len()),
	)
	fmt.Printf("Extracted: %s (%d meshes)\n", fs.Arg(1), len(sc.Meshes))
}

func cmdInfo(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: mdltool info <in.mdl>")
		os.Exit(1)
	}

	model, err := mdl.ParseFile(args[0])
	if err != nil {
		fail(err)
	}
	printInfo(os.Stdout, args[0], model)
}

func printInfo(w io.Writer, path string, m *mdl.Model) {
	h := m.ModelHeader
	fmt.Fprintf(w, "Model:     %s\n", path)
	fmt.Fprintf(w, "Version:   0x%08x\n", m.FileHeader.Version)
	fmt.Fprintf(w, "Size:      %d bytes\n", m.FileSize())
	fmt.Fprintf(w, "Radius:    %.4f\n", h.Radius)
	fmt.Fprintf(w, "Meshes:    %d (%d submeshes)\n", h.MeshCount, h.SubmeshCount)
	fmt.Fprintf(w, "Bones:     %d (%d tables)\n", h.BoneCount, h.BoneTableCount)
	fmt.Fprintf(w, "Shapes:    %d (%d meshes, %d values)\n", h.ShapeCount, h.ShapeMeshCount, h.ShapeValueCount)
	fmt.Fprintf(w, "Lod 0:     %d vertex bytes, %d index bytes\n", m.Lods[0].VertexBufferSize, m.Lods[0].IndexBufferSize)
	fmt.Fprintln(w)

	printNames(w, "Materials", m.MaterialNames())
	printNames(w, "Attributes", m.AttributeNames())
	printNames(w, "Bones", m.BoneNames())
	printNames(w, "Shapes", m.ShapeNames())
}

func printNames(w io.Writer, title string, names []string) {
	if len(names) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", title)
	for i, n := range names {
		fmt.Fprintf(w, "  %3d %s\n", i, n)
	}
}

func cmdDump(args []string) {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	section := fs.String("section", "all", "Section: all, declarations, meshes, bones, shapes, boxes")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: mdltool dump [-section name] <in.mdl>")
		os.Exit(1)
	}

	model, err := mdl.ParseFile(fs.Arg(0))
	if err != nil {
		fail(err)
	}
	if err := dump(os.Stdout, model, strings.ToLower(*section)); err != nil {
		fail(err)
	}
}

func dump(w io.Writer, m *mdl.Model, section string) error {
	all := section == "all"
	known := false

	if all || section == "declarations" {
		known = true
		for i, d := range m.VertexDeclarations {
			fmt.Fprintf(w, "declaration %d strides=%v streams=%d\n", i, d.Strides(), d.StreamCount())
			for _, e := range d.Elements {
				fmt.Fprintf(w, "  stream=%d offset=%-3d %-16s %s[%d]\n", e.Stream, e.Offset, e.Type, e.Usage, e.UsageIndex)
			}
		}
	}

	if all || section == "meshes" {
		known = true
		materials := m.MaterialNames()
		for i, mesh := range m.Meshes {
			material := "?"
			if int(mesh.MaterialIndex) < len(materials) {
				material = materials[mesh.MaterialIndex]
			}
			fmt.Fprintf(w, "mesh %d vertices=%d indices=%d start=%d material=%s bonetable=%d\n",
				i, mesh.VertexCount, mesh.IndexCount, mesh.StartIndex, material, mesh.BoneTableIndex)
			fmt.Fprintf(w, "  streams offset=%v stride=%v count=%d\n",
				mesh.VertexBufferOffset, mesh.VertexBufferStride, mesh.VertexStreamCount)
			for k := 0; k < int(mesh.SubmeshCount); k++ {
				si := int(mesh.SubmeshIndex) + k
				if si >= len(m.Submeshes) {
					break
				}
				s := m.Submeshes[si]
				fmt.Fprintf(w, "  submesh %d offset=%d count=%d mask=%#x bones=%d+%d\n",
					si, s.IndexOffset, s.IndexCount, s.AttributeIndexMask, s.BoneStartIndex, s.BoneCount)
			}
		}
	}

	if all || section == "bones" {
		known = true
		names := m.BoneNames()
		for i, t := range m.BoneTables {
			fmt.Fprintf(w, "bonetable %d count=%d\n", i, t.BoneCount)
			for slot, b := range t.Bones() {
				name := "?"
				if int(b) < len(names) {
					name = names[b]
				}
				fmt.Fprintf(w, "  %2d -> %3d %s\n", slot, b, name)
			}
		}
	}

	if all || section == "shapes" {
		known = true
		for _, s := range m.Shapes {
			fmt.Fprintf(w, "shape %s meshes=%d+%d\n", m.String(s.StringOffset), s.ShapeMeshStartIndex[0], s.ShapeMeshCount[0])
			start := int(s.ShapeMeshStartIndex[0])
			for smi := start; smi < start+int(s.ShapeMeshCount[0]) && smi < len(m.ShapeMeshes); smi++ {
				sm := m.ShapeMeshes[smi]
				fmt.Fprintf(w, "  shapemesh %d start=%d values=%d+%d\n", smi, sm.MeshIndexOffset, sm.ShapeValueOffset, sm.ShapeValueCount)
			}
		}
	}

	if all || section == "boxes" {
		known = true
		fmt.Fprintf(w, "bounds       %v %v\n", m.BoundingBoxes.Min, m.BoundingBoxes.Max)
		fmt.Fprintf(w, "model bounds %v %v\n", m.ModelBoundingBoxes.Min, m.ModelBoundingBoxes.Max)
		for i, b := range m.BoneBoundingBoxes {
			fmt.Fprintf(w, "bone %3d     %v %v\n", i, b.Min, b.Max)
		}
	}

	if !known {
		return fmt.Errorf("unknown section %q", section)
	}
	return nil
}

func cmdConfig(cfg *config.Config, args []string) {
	if len(args) < 1 {
		if err := cfg.Save(); err != nil {
			fail(err)
		}
		fmt.Printf("Wrote: %s\n", config.ConfigDir())
		return
	}
	if err := cfg.SaveTo(args[0]); err != nil {
		fail(err)
	}
	fmt.Printf("Wrote: %s\n", args[0])
}
