// Package extract turns files into review documents.
//
// Text formats (.txt, .md, .html, .pdf, .docx, .csv) are reduced to plain
// text with headings kept as "#" lines. Image files (.png, .jpg, .gif, .webp)
// become image documents; a directory of images becomes one multi-page
// document.
package extract
