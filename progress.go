package main

import (
	"fmt"
	"io"
	"time"

	pb "gopkg.in/cheggaaa/pb.v1"

	"dezoomify/internal/dezoomer"
)

// progressBar shows tile downloads. The bar is created on the first tile,
// when the total is known.
type progressBar struct {
	bar *pb.ProgressBar
	out io.Writer // stdout when nil
}

func (p *progressBar) TileDone(done, total int, ref dezoomer.TileReference, err error) {
	if p.bar == nil {
		p.bar = pb.New(total).Prefix("Tiles ")
		p.bar.Output = p.out
		p.bar.SetRefreshRate(200 * time.Millisecond)
		p.bar.Start()
	}
	p.bar.Set(done)
	if err != nil {
		p.bar.Postfix(fmt.Sprintf(" failed tile at %s", ref.Position))
	} else {
		p.bar.Postfix(fmt.Sprintf(" downloaded tile at %s", ref.Position))
	}
}

func (p *progressBar) Finish(msg string) {
	if p.bar == nil {
		if p.out != nil {
			fmt.Fprintln(p.out, msg)
		} else {
			fmt.Println(msg)
		}
		return
	}
	p.bar.Postfix("")
	p.bar.FinishPrint(msg)
}
